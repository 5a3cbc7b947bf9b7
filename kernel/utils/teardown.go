package utils

import "sync"

// Teardown runs registered release steps exactly once, newest first.
// Unlike a shutdown fan-out, steps run sequentially so a subsystem can rely
// on the ones registered after it already being gone.
type Teardown struct {
	mu     sync.Mutex
	steps  []teardownStep
	logger *Logger
}

type teardownStep struct {
	name string
	fn   func()
}

// NewTeardown creates an empty teardown stack
func NewTeardown(logger *Logger) *Teardown {
	if logger == nil {
		logger = DefaultLogger("teardown")
	}
	return &Teardown{logger: logger}
}

// Register pushes a release step.
func (t *Teardown) Register(name string, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, teardownStep{name: name, fn: fn})
}

// Len returns the number of pending steps.
func (t *Teardown) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps)
}

// Run executes all pending steps in LIFO order and clears the stack.
// A panicking step is logged and does not stop the remaining ones.
func (t *Teardown) Run() {
	t.mu.Lock()
	steps := t.steps
	t.steps = nil
	t.mu.Unlock()

	for i := len(steps) - 1; i >= 0; i-- {
		t.runStep(steps[i])
	}
}

func (t *Teardown) runStep(step teardownStep) {
	defer RecoverWarn(t.logger, "teardown:"+step.name)
	step.fn()
	t.logger.Debug("Released", String("step", step.name))
}
