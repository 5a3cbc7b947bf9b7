//go:build js && wasm
// +build js,wasm

package gpu

import (
	"errors"
	"syscall/js"
	"unsafe"

	"github.com/nmxmxh/perfscope/kernel/utils"
)

// Canvas size of the hidden benchmark surface.
const canvasSize = 256

// contextNames are tried in order; the first that yields a context wins.
var contextNames = []string{"webgl", "experimental-webgl"}

type canvasSurface struct {
	canvas js.Value
}

// DefaultSurface creates a hidden canvas attached to the document body.
func DefaultSurface() (s Surface, err error) {
	defer utils.RecoverError("gpu:canvas", &err)

	doc := js.Global().Get("document")
	if doc.IsUndefined() || doc.IsNull() {
		return nil, ErrNoContext
	}
	canvas := doc.Call("createElement", "canvas")
	canvas.Set("width", canvasSize)
	canvas.Set("height", canvasSize)
	style := canvas.Get("style")
	style.Set("position", "absolute")
	style.Set("left", "-9999px")
	style.Set("top", "-9999px")
	style.Set("visibility", "hidden")
	style.Set("pointerEvents", "none")
	canvas.Call("setAttribute", "aria-hidden", "true")

	if body := doc.Get("body"); !body.IsNull() && !body.IsUndefined() {
		body.Call("appendChild", canvas)
	}
	return &canvasSurface{canvas: canvas}, nil
}

func (s *canvasSurface) Context() (Context, error) {
	opts := map[string]interface{}{
		"antialias":             false,
		"preserveDrawingBuffer": false,
		"powerPreference":       "high-performance",
	}
	for _, name := range contextNames {
		gl := s.canvas.Call("getContext", name, opts)
		if !gl.IsNull() && !gl.IsUndefined() {
			return newWebGLContext(gl), nil
		}
	}
	return nil, ErrNoContext
}

func (s *canvasSurface) Remove() {
	if parent := s.canvas.Get("parentNode"); !parent.IsNull() && !parent.IsUndefined() {
		parent.Call("removeChild", s.canvas)
	}
	s.canvas = js.Null()
}

// WebGL enums used by the benchmark.
const (
	glArrayBuffer      = 0x8892
	glDynamicDraw      = 0x88E8
	glFloat            = 0x1406
	glTriangles        = 0x0004
	glVertexShader     = 0x8B31
	glFragmentShader   = 0x8B30
	glCompileStatus    = 0x8B81
	glLinkStatus       = 0x8B82
	glNoError          = 0
	glVendor           = 0x1F00
	glRenderer         = 0x1F01
	glVersion          = 0x1F02
	glShadingLangVer   = 0x8B8C
	glMaxTextureSize   = 0x0D33
	glUnmaskedVendor   = 0x9245
	glUnmaskedRenderer = 0x9246
	bytesPerFloat      = 4
	vertexStride       = floatsPerVertex * bytesPerFloat
	colorOffset        = 2 * bytesPerFloat
)

var paramEnums = map[Param]int{
	ParamVendor:                 glVendor,
	ParamRenderer:               glRenderer,
	ParamVersion:                glVersion,
	ParamShadingLanguageVersion: glShadingLangVer,
	ParamMaxTextureSize:         glMaxTextureSize,
	ParamUnmaskedVendor:         glUnmaskedVendor,
	ParamUnmaskedRenderer:       glUnmaskedRenderer,
}

type webglContext struct {
	gl      js.Value
	objects map[Handle]js.Value
	next    Handle

	staging js.Value // Uint8Array reused across uploads
}

func newWebGLContext(gl js.Value) *webglContext {
	return &webglContext{gl: gl, objects: make(map[Handle]js.Value)}
}

func (c *webglContext) store(v js.Value) Handle {
	c.next++
	c.objects[c.next] = v
	return c.next
}

func (c *webglContext) HasExtension(name string) bool {
	ext := c.gl.Call("getExtension", name)
	return !ext.IsNull() && !ext.IsUndefined()
}

func (c *webglContext) ParameterString(p Param) (string, bool) {
	enum, ok := paramEnums[p]
	if !ok {
		return "", false
	}
	v := c.gl.Call("getParameter", enum)
	if v.Type() != js.TypeString {
		return "", false
	}
	return v.String(), true
}

func (c *webglContext) ParameterInt(p Param) (int, bool) {
	enum, ok := paramEnums[p]
	if !ok {
		return 0, false
	}
	v := c.gl.Call("getParameter", enum)
	if v.Type() != js.TypeNumber {
		return 0, false
	}
	return v.Int(), true
}

func (c *webglContext) compileShader(kind int, src string) (js.Value, error) {
	shader := c.gl.Call("createShader", kind)
	if shader.IsNull() {
		return js.Null(), errors.New("createShader returned null")
	}
	c.gl.Call("shaderSource", shader, src)
	c.gl.Call("compileShader", shader)
	if !c.gl.Call("getShaderParameter", shader, glCompileStatus).Truthy() {
		msg := c.gl.Call("getShaderInfoLog", shader).String()
		c.gl.Call("deleteShader", shader)
		return js.Null(), errors.New("compile shader: " + msg)
	}
	return shader, nil
}

func (c *webglContext) CompileProgram(vertexSrc, fragmentSrc string) (Handle, error) {
	vs, err := c.compileShader(glVertexShader, vertexSrc)
	if err != nil {
		return 0, err
	}
	defer c.gl.Call("deleteShader", vs)
	fs, err := c.compileShader(glFragmentShader, fragmentSrc)
	if err != nil {
		return 0, err
	}
	defer c.gl.Call("deleteShader", fs)

	program := c.gl.Call("createProgram")
	c.gl.Call("attachShader", program, vs)
	c.gl.Call("attachShader", program, fs)
	c.gl.Call("linkProgram", program)
	if !c.gl.Call("getProgramParameter", program, glLinkStatus).Truthy() {
		msg := c.gl.Call("getProgramInfoLog", program).String()
		c.gl.Call("deleteProgram", program)
		return 0, errors.New("link program: " + msg)
	}
	return c.store(program), nil
}

func (c *webglContext) UseProgram(program Handle) {
	c.gl.Call("useProgram", c.objects[program])
}

func (c *webglContext) SetTime(program Handle, seconds float32) {
	loc := c.gl.Call("getUniformLocation", c.objects[program], "uTime")
	if !loc.IsNull() {
		c.gl.Call("uniform1f", loc, seconds)
	}
}

func (c *webglContext) DeleteProgram(program Handle) {
	if v, ok := c.objects[program]; ok {
		c.gl.Call("deleteProgram", v)
		delete(c.objects, program)
	}
}

func (c *webglContext) CreateBuffer() (Handle, error) {
	buf := c.gl.Call("createBuffer")
	if buf.IsNull() {
		return 0, errors.New("createBuffer returned null")
	}
	return c.store(buf), nil
}

func (c *webglContext) BufferData(buffer Handle, vertices []float32) {
	if len(vertices) == 0 {
		return
	}
	// wasm is little-endian, so the float slice is already in upload order.
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*bytesPerFloat)
	if c.staging.IsUndefined() || c.staging.Get("length").Int() != len(raw) {
		c.staging = js.Global().Get("Uint8Array").New(len(raw))
	}
	js.CopyBytesToJS(c.staging, raw)
	floats := js.Global().Get("Float32Array").New(c.staging.Get("buffer"))

	c.gl.Call("bindBuffer", glArrayBuffer, c.objects[buffer])
	c.gl.Call("bufferData", glArrayBuffer, floats, glDynamicDraw)
}

func (c *webglContext) BindAttributes(program Handle, buffer Handle) {
	p := c.objects[program]
	c.gl.Call("bindBuffer", glArrayBuffer, c.objects[buffer])

	pos := c.gl.Call("getAttribLocation", p, "aPosition").Int()
	if pos >= 0 {
		c.gl.Call("enableVertexAttribArray", pos)
		c.gl.Call("vertexAttribPointer", pos, 2, glFloat, false, vertexStride, 0)
	}
	col := c.gl.Call("getAttribLocation", p, "aColor").Int()
	if col >= 0 {
		c.gl.Call("enableVertexAttribArray", col)
		c.gl.Call("vertexAttribPointer", col, 3, glFloat, false, vertexStride, colorOffset)
	}
}

func (c *webglContext) DeleteBuffer(buffer Handle) {
	if v, ok := c.objects[buffer]; ok {
		c.gl.Call("deleteBuffer", v)
		delete(c.objects, buffer)
	}
}

func (c *webglContext) DrawTriangles(count int) {
	c.gl.Call("drawArrays", glTriangles, 0, count*verticesPerTri)
}

func (c *webglContext) Finish() {
	c.gl.Call("finish")
}

func (c *webglContext) Err() error {
	code := c.gl.Call("getError").Int()
	if code == glNoError {
		return nil
	}
	return &GLError{Code: code}
}

func (c *webglContext) Lose() {
	// programs and buffers are freed per run; drop any stragglers
	c.objects = make(map[Handle]js.Value)
	if ext := c.gl.Call("getExtension", "WEBGL_lose_context"); !ext.IsNull() && !ext.IsUndefined() {
		ext.Call("loseContext")
	}
}
