//go:build !js || !wasm
// +build !js !wasm

package gpu

// DefaultSurface reports that native builds have no canvas.
func DefaultSurface() (Surface, error) {
	return nil, ErrNoContext
}
