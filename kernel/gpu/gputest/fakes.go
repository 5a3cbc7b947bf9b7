// Package gputest provides a scripted rendering context that counts every
// allocation and release.
package gputest

import (
	"errors"
	"sync"

	"github.com/nmxmxh/perfscope/kernel/gpu"
)

// Context is an in-memory gpu.Context.
type Context struct {
	mu sync.Mutex

	Extensions map[string]bool
	Strings    map[gpu.Param]string
	Ints       map[gpu.Param]int

	// OnFinish runs after every frame; tests advance a mock clock here.
	OnFinish func()
	// FailDraws makes Err report a GL error after each run.
	FailDraws bool
	// PanicOnDraw simulates an exception thrown across the JS boundary.
	PanicOnDraw bool

	next             gpu.Handle
	ProgramsCreated  int
	ProgramsDeleted  int
	BuffersCreated   int
	BuffersDeleted   int
	Draws            int
	TrianglesDrawn   int
	LastVertexFloats int
	Lost             int
}

// NewContext returns a context exposing the given vendor/renderer through
// the debug extension.
func NewContext(vendor, renderer string) *Context {
	return &Context{
		Extensions: map[string]bool{gpu.DebugRendererInfo: true},
		Strings: map[gpu.Param]string{
			gpu.ParamVendor:           "WebKit",
			gpu.ParamRenderer:         "WebKit WebGL",
			gpu.ParamVersion:          "WebGL 1.0",
			gpu.ParamUnmaskedVendor:   vendor,
			gpu.ParamUnmaskedRenderer: renderer,
		},
		Ints: map[gpu.Param]int{gpu.ParamMaxTextureSize: 16384},
	}
}

func (c *Context) HasExtension(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Extensions[name]
}

func (c *Context) ParameterString(p gpu.Param) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Strings[p]
	return v, ok
}

func (c *Context) ParameterInt(p gpu.Param) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Ints[p]
	return v, ok
}

func (c *Context) CompileProgram(_, _ string) (gpu.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.ProgramsCreated++
	return c.next, nil
}

func (c *Context) UseProgram(gpu.Handle)          {}
func (c *Context) SetTime(gpu.Handle, float32)    {}
func (c *Context) BindAttributes(_, _ gpu.Handle) {}

func (c *Context) DeleteProgram(gpu.Handle) {
	c.mu.Lock()
	c.ProgramsDeleted++
	c.mu.Unlock()
}

func (c *Context) CreateBuffer() (gpu.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.BuffersCreated++
	return c.next, nil
}

func (c *Context) BufferData(_ gpu.Handle, vertices []float32) {
	c.mu.Lock()
	c.LastVertexFloats = len(vertices)
	c.mu.Unlock()
}

func (c *Context) DeleteBuffer(gpu.Handle) {
	c.mu.Lock()
	c.BuffersDeleted++
	c.mu.Unlock()
}

func (c *Context) DrawTriangles(count int) {
	c.mu.Lock()
	panicking := c.PanicOnDraw
	c.Draws++
	c.TrianglesDrawn += count
	c.mu.Unlock()
	if panicking {
		panic("WebGL: CONTEXT_LOST_WEBGL")
	}
}

func (c *Context) Finish() {
	c.mu.Lock()
	hook := c.OnFinish
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailDraws {
		return errors.New("INVALID_OPERATION")
	}
	return nil
}

func (c *Context) Lose() {
	c.mu.Lock()
	c.Lost++
	c.mu.Unlock()
}

// Counters is a point-in-time copy of a Context's counters.
type Counters struct {
	ProgramsCreated  int
	ProgramsDeleted  int
	BuffersCreated   int
	BuffersDeleted   int
	Draws            int
	TrianglesDrawn   int
	LastVertexFloats int
	Lost             int
}

// Counters returns the counters under lock.
func (c *Context) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{
		ProgramsCreated:  c.ProgramsCreated,
		ProgramsDeleted:  c.ProgramsDeleted,
		BuffersCreated:   c.BuffersCreated,
		BuffersDeleted:   c.BuffersDeleted,
		Draws:            c.Draws,
		TrianglesDrawn:   c.TrianglesDrawn,
		LastVertexFloats: c.LastVertexFloats,
		Lost:             c.Lost,
	}
}

// Surface hands out Ctx; a nil Ctx behaves like a canvas without WebGL.
type Surface struct {
	mu      sync.Mutex
	Ctx     gpu.Context
	Removed int
}

func (s *Surface) Context() (gpu.Context, error) {
	if s.Ctx == nil {
		return nil, gpu.ErrNoContext
	}
	return s.Ctx, nil
}

func (s *Surface) Remove() {
	s.mu.Lock()
	s.Removed++
	s.mu.Unlock()
}

// RemovedCount returns how often Remove ran.
func (s *Surface) RemovedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Removed
}

// Factory returns a SurfaceFactory that always yields s.
func (s *Surface) Factory() gpu.SurfaceFactory {
	return func() (gpu.Surface, error) { return s, nil }
}
