//go:build !js || !wasm
// +build !js !wasm

package utils

// redirectLogToBridge is a no-op on native platforms
func (l *Logger) redirectLogToBridge(level LogLevel, logLine string) bool {
	// Native builds write straight to l.output
	return false
}
