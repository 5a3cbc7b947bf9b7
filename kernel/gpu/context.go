// Package gpu estimates graphics headroom with a synthetic WebGL workload:
// a hidden canvas draws batches of random triangles for a fixed time and the
// frame throughput is compared against a baseline taken at startup.
package gpu

import (
	"errors"
	"fmt"
)

// ErrNoContext is returned when no 3D rendering context can be acquired.
var ErrNoContext = errors.New("gpu: rendering context unavailable")

// Param identifies a context parameter query.
type Param int

const (
	ParamVendor Param = iota
	ParamRenderer
	ParamVersion
	ParamShadingLanguageVersion
	ParamMaxTextureSize
	ParamUnmaskedVendor
	ParamUnmaskedRenderer
)

// DebugRendererInfo is the extension that unmasks vendor/renderer strings.
const DebugRendererInfo = "WEBGL_debug_renderer_info"

// Handle refers to a program or buffer owned by a Context.
type Handle int

// Context is the slice of the WebGL API the benchmark needs.
type Context interface {
	HasExtension(name string) bool
	ParameterString(p Param) (string, bool)
	ParameterInt(p Param) (int, bool)

	CompileProgram(vertexSrc, fragmentSrc string) (Handle, error)
	UseProgram(program Handle)
	SetTime(program Handle, seconds float32)
	DeleteProgram(program Handle)

	CreateBuffer() (Handle, error)
	BufferData(buffer Handle, vertices []float32)
	BindAttributes(program Handle, buffer Handle)
	DeleteBuffer(buffer Handle)

	DrawTriangles(count int)
	Finish()
	// Err returns the pending error flag, if any, and clears it.
	Err() error
	// Lose releases the underlying context.
	Lose()
}

// Surface owns the hidden canvas a Context draws into.
type Surface interface {
	Context() (Context, error)
	Remove()
}

// SurfaceFactory creates a Surface. It returns ErrNoContext when the host
// has no canvas at all.
type SurfaceFactory func() (Surface, error)

// Vertex layout: vec2 position + vec3 color.
const (
	floatsPerVertex   = 5
	verticesPerTri    = 3
	floatsPerTriangle = floatsPerVertex * verticesPerTri
)

const vertexShader = `
attribute vec2 aPosition;
attribute vec3 aColor;
uniform float uTime;
varying vec3 vColor;
void main() {
	float c = cos(uTime);
	float s = sin(uTime);
	vec2 p = vec2(aPosition.x * c - aPosition.y * s, aPosition.x * s + aPosition.y * c);
	gl_Position = vec4(p, 0.0, 1.0);
	vColor = aColor;
}
`

const fragmentShader = `
precision mediump float;
varying vec3 vColor;
void main() {
	gl_FragColor = vec4(vColor, 1.0);
}
`

// GLError is a non-zero getError() code.
type GLError struct {
	Code int
}

func (e *GLError) Error() string {
	return fmt.Sprintf("gpu: GL error 0x%04X", e.Code)
}
