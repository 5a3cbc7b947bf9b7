package telemetry

import (
	"sync"

	"github.com/nmxmxh/perfscope/kernel/platform"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

// VitalNames are the metrics subscribed through the vitals library.
var VitalNames = []string{"LCP", "INP", "CLS", "FCP", "TTFB"}

// VitalsCollector subscribes to Web Vitals and long-task entries and turns
// them into updates. Enable/Disable are idempotent.
type VitalsCollector struct {
	mu          sync.Mutex
	source      platform.VitalsSource
	observers   platform.ObserverFactory
	emit        Emitter
	throttle    *utils.WarnThrottle
	ownThrottle bool
	logger      *utils.Logger

	handles []func()
	enabled bool
}

// NewVitalsCollector creates a disabled collector. Either source may be nil.
func NewVitalsCollector(source platform.VitalsSource, observers platform.ObserverFactory, emit Emitter, throttle *utils.WarnThrottle, logger *utils.Logger) *VitalsCollector {
	if logger == nil {
		logger = utils.DefaultLogger("vitals")
	}
	c := &VitalsCollector{
		source:    source,
		observers: observers,
		emit:      emit,
		throttle:  throttle,
		logger:    logger,
	}
	if throttle == nil {
		c.throttle = utils.NewWarnThrottle(logger, utils.DefaultThrottleConfig())
		c.ownThrottle = true
	}
	return c
}

// Enable subscribes to the selected feeds. Calling it again while enabled
// does nothing; Disable first to change the selection.
func (c *VitalsCollector) Enable(vitals, longTasks bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	c.enabled = true

	if vitals {
		c.subscribeVitalsLocked()
	}
	if longTasks {
		c.observeLongTasksLocked()
	}
}

// Disable invokes every stored unsubscribe/disconnect handle once and
// clears the list.
func (c *VitalsCollector) Disable() {
	c.mu.Lock()
	handles := c.handles
	c.handles = nil
	c.enabled = false
	c.mu.Unlock()

	for _, release := range handles {
		c.release(release)
	}
	if c.ownThrottle {
		c.throttle.Close()
	}
}

// Enabled reports whether subscriptions are active.
func (c *VitalsCollector) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Handles returns the number of live subscriptions and observers.
func (c *VitalsCollector) Handles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *VitalsCollector) subscribeVitalsLocked() {
	if c.source == nil {
		c.throttle.WarnOnce("vitals:unsupported", "Web Vitals library unavailable, perceptual metrics disabled")
		return
	}
	for _, name := range VitalNames {
		unsubscribe, err := c.subscribe(name)
		if err != nil {
			c.throttle.WarnOnce("vitals:"+name, "Web Vitals subscription failed",
				utils.String("metric", name), utils.Err(err))
			continue
		}
		if unsubscribe != nil {
			c.handles = append(c.handles, unsubscribe)
		}
	}
}

func (c *VitalsCollector) subscribe(name string) (unsubscribe func(), err error) {
	defer utils.RecoverError("vitals:subscribe", &err)
	return c.source.Subscribe(name, func(ev platform.VitalEvent) {
		defer utils.RecoverWarn(c.logger, "vitals:report")
		reported := ev.Name
		if reported == "" {
			reported = name
		}
		c.emit.Apply(VitalReport{Name: reported, Value: ev.Value})
	})
}

func (c *VitalsCollector) observeLongTasksLocked() {
	if c.observers == nil {
		c.throttle.WarnOnce("longtask:unsupported", "PerformanceObserver unavailable, long-task tracking disabled")
		return
	}
	disconnect, err := c.observe()
	if err != nil {
		c.throttle.WarnOnce("longtask:observe", "Long-task observer setup failed", utils.Err(err))
		return
	}
	if disconnect != nil {
		c.handles = append(c.handles, disconnect)
	}
}

func (c *VitalsCollector) observe() (disconnect func(), err error) {
	defer utils.RecoverError("longtask:observe", &err)
	return c.observers.Observe(platform.EntryTypeLongTask, func(entries int) {
		defer utils.RecoverWarn(c.logger, "longtask:batch")
		c.emit.Apply(LongTaskBatch{Entries: entries})
	})
}

func (c *VitalsCollector) release(fn func()) {
	defer utils.RecoverWarn(c.logger, "vitals:release")
	fn()
}
