package quality

import (
	"sync"

	"github.com/nmxmxh/perfscope/kernel/telemetry"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

// Evaluation is the outcome of one tier re-evaluation.
type Evaluation struct {
	Tier       Tier   `json:"tier"`
	Previous   Tier   `json:"previous"`
	Changed    bool   `json:"changed"`
	Config     Config `json:"config"`
	AverageFPS *int   `json:"averageFps"`
	FPS        *int   `json:"fps"`
}

// Listener receives every evaluation, changed or not.
type Listener func(Evaluation)

// Controller re-evaluates the tier on every frame-category update and
// republishes the result. It starts in minimal until a sample arrives.
type Controller struct {
	mu          sync.Mutex
	class       telemetry.BrowserClass
	tier        Tier
	fps         *int
	avg         *int
	evaluations int
	transitions int

	listenMu  sync.RWMutex
	listeners map[int]Listener
	nextID    int

	logger *utils.Logger
}

// NewController creates a controller for the given browser class.
func NewController(class telemetry.BrowserClass, logger *utils.Logger) *Controller {
	if logger == nil {
		logger = utils.DefaultLogger("quality")
	}
	return &Controller{
		class:     class,
		tier:      TierMinimal,
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// Attach evaluates on every frame-category publish of agg. The returned
// func detaches.
func (c *Controller) Attach(agg *telemetry.Aggregator) (detach func()) {
	return agg.Subscribe(func(snap telemetry.MetricsSnapshot, changed telemetry.Category) {
		if changed == telemetry.CategoryFrame {
			c.Observe(snap)
		}
	})
}

// Observe evaluates snap and publishes the result.
func (c *Controller) Observe(snap telemetry.MetricsSnapshot) Evaluation {
	c.mu.Lock()
	prev := c.tier
	next := Evaluate(snap.AverageFPS, c.class)
	c.tier = next
	c.fps = copyInt(snap.FPS)
	c.avg = copyInt(snap.AverageFPS)
	c.evaluations++
	if next != prev {
		c.transitions++
	}
	ev := Evaluation{
		Tier:       next,
		Previous:   prev,
		Changed:    next != prev,
		Config:     ConfigFor(next),
		AverageFPS: copyInt(snap.AverageFPS),
		FPS:        copyInt(snap.FPS),
	}
	class := c.class
	c.mu.Unlock()

	if ev.Changed {
		c.logger.Info("Quality tier changed",
			utils.String("from", string(prev)),
			utils.String("to", string(next)),
			utils.Any("average_fps", derefInt(ev.AverageFPS)),
			utils.String("browser", class.String()))
	}
	c.publish(ev)
	return ev
}

// SetBrowserClass changes the threshold set used from the next evaluation.
func (c *Controller) SetBrowserClass(class telemetry.BrowserClass) {
	c.mu.Lock()
	c.class = class
	c.mu.Unlock()
}

// Tier returns the current tier.
func (c *Controller) Tier() Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

// Config returns a fresh copy of the current tier's configuration.
func (c *Controller) Config() Config {
	return ConfigFor(c.Tier())
}

// CanAnimate gates a single animation request.
func (c *Controller) CanAnimate(p Priority) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CanAnimate(c.tier, c.fps, p)
}

// Stats returns how many evaluations and tier transitions have happened.
func (c *Controller) Stats() (evaluations, transitions int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evaluations, c.transitions
}

// Subscribe registers fn for every evaluation.
func (c *Controller) Subscribe(fn Listener) (cancel func()) {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenMu.Lock()
			delete(c.listeners, id)
			c.listenMu.Unlock()
		})
	}
}

func (c *Controller) publish(ev Evaluation) {
	c.listenMu.RLock()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenMu.RUnlock()

	for _, fn := range fns {
		c.deliver(fn, ev)
	}
}

func (c *Controller) deliver(fn Listener, ev Evaluation) {
	defer utils.RecoverWarn(c.logger, "quality:listener")
	fn(ev)
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func derefInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
