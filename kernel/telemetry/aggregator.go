package telemetry

import (
	"sync"

	"github.com/nmxmxh/perfscope/kernel/utils"
)

const (
	DefaultHistorySize = 60
	DefaultStatsWindow = 10
)

// Config sizes the FPS windows and selects the lag threshold.
type Config struct {
	HistorySize int // timeline window, presentation only
	StatsWindow int // feeds average/min/max
	Browser     BrowserClass
}

// DefaultConfig returns the 60/10 windows for a standard browser.
func DefaultConfig() Config {
	return Config{
		HistorySize: DefaultHistorySize,
		StatsWindow: DefaultStatsWindow,
		Browser:     BrowserStandard,
	}
}

// Subscriber receives a copy of the snapshot after every update, with the
// category that changed.
type Subscriber func(snap MetricsSnapshot, changed Category)

// Aggregator owns the MetricsSnapshot. Every probe writes through Apply.
type Aggregator struct {
	mu sync.Mutex
	st reducerState

	subMu   sync.RWMutex
	subs    map[int]Subscriber
	nextSub int

	logger *utils.Logger
}

// NewAggregator creates an aggregator with an unmeasured snapshot.
func NewAggregator(cfg Config, logger *utils.Logger) *Aggregator {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = DefaultStatsWindow
	}
	if logger == nil {
		logger = utils.DefaultLogger("aggregator")
	}
	return &Aggregator{
		st:     reducerState{snap: NewSnapshot(), cfg: cfg},
		subs:   make(map[int]Subscriber),
		logger: logger,
	}
}

// Apply reduces u into the snapshot and publishes the result.
func (a *Aggregator) Apply(u Update) {
	if u == nil {
		return
	}
	a.mu.Lock()
	u.apply(&a.st)
	snap := a.st.snap.Clone()
	a.mu.Unlock()

	a.publish(snap, u.Category())
}

// Snapshot returns a copy of the current state.
func (a *Aggregator) Snapshot() MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.snap.Clone()
}

// Config returns the window configuration.
func (a *Aggregator) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.cfg
}

// SetBrowserClass switches the lag threshold for subsequent samples.
func (a *Aggregator) SetBrowserClass(c BrowserClass) {
	a.mu.Lock()
	a.st.cfg.Browser = c
	a.mu.Unlock()
}

// StatsWindow returns a copy of the samples behind average/min/max.
func (a *Aggregator) StatsWindow() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.st.stats...)
}

// Subscribe registers fn and returns its cancel func.
func (a *Aggregator) Subscribe(fn Subscriber) (cancel func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.nextSub++
	id := a.nextSub
	a.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
		})
	}
}

func (a *Aggregator) publish(snap MetricsSnapshot, changed Category) {
	a.subMu.RLock()
	subs := make([]Subscriber, 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.subMu.RUnlock()

	for _, fn := range subs {
		a.deliver(fn, snap, changed)
	}
}

func (a *Aggregator) deliver(fn Subscriber, snap MetricsSnapshot, changed Category) {
	defer utils.RecoverWarn(a.logger, "aggregator:subscriber")
	fn(snap, changed)
}
