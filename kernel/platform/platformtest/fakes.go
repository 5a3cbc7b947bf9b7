// Package platformtest provides scripted host primitives that count every
// setup and release call, so tests can assert that teardown leaves nothing
// pending.
package platformtest

import (
	"strings"
	"sync"

	"github.com/nmxmxh/perfscope/kernel/platform"
)

// Frames is a manually driven FrameScheduler.
type Frames struct {
	mu        sync.Mutex
	nowMs     float64
	next      platform.FrameHandle
	pending   map[platform.FrameHandle]func(float64)
	Requested int
	Cancelled int
}

// NewFrames creates an idle frame source.
func NewFrames() *Frames {
	return &Frames{pending: make(map[platform.FrameHandle]func(float64))}
}

func (f *Frames) RequestFrame(cb func(float64)) (platform.FrameHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.pending[f.next] = cb
	f.Requested++
	return f.next, nil
}

func (f *Frames) CancelFrame(h platform.FrameHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[h]; ok {
		delete(f.pending, h)
		f.Cancelled++
	}
}

func (f *Frames) Now() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nowMs
}

// SetNow moves the clock without delivering a frame.
func (f *Frames) SetNow(ms float64) {
	f.mu.Lock()
	f.nowMs = ms
	f.mu.Unlock()
}

// Fire delivers one frame at ts to every pending callback.
func (f *Frames) Fire(ts float64) {
	f.mu.Lock()
	f.nowMs = ts
	cbs := make([]func(float64), 0, len(f.pending))
	for h, cb := range f.pending {
		cbs = append(cbs, cb)
		delete(f.pending, h)
	}
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(ts)
	}
}

// FireEvenly delivers n frames spaced evenly over (start, start+spanMs].
func (f *Frames) FireEvenly(start, spanMs float64, n int) {
	for i := 1; i <= n; i++ {
		f.Fire(start + spanMs*float64(i)/float64(n))
	}
}

// Pending returns the number of outstanding requests.
func (f *Frames) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Observers is a scripted ObserverFactory.
type Observers struct {
	mu           sync.Mutex
	Unsupported  map[string]bool
	handlers     map[int]func(int)
	nextID       int
	Connected    int
	Disconnected int
}

// NewObservers supports every entry type except the ones listed.
func NewObservers(unsupported ...string) *Observers {
	o := &Observers{Unsupported: map[string]bool{}, handlers: map[int]func(int){}}
	for _, t := range unsupported {
		o.Unsupported[t] = true
	}
	return o
}

func (o *Observers) Observe(entryType string, onBatch func(int)) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Unsupported[entryType] {
		return nil, platform.ErrUnsupported
	}
	o.nextID++
	id := o.nextID
	o.handlers[id] = onBatch
	o.Connected++
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.handlers, id)
		o.Disconnected++
	}, nil
}

// Emit delivers a batch of n entries to every live observer.
func (o *Observers) Emit(n int) {
	o.mu.Lock()
	hs := make([]func(int), 0, len(o.handlers))
	for _, h := range o.handlers {
		hs = append(hs, h)
	}
	o.mu.Unlock()
	for _, h := range hs {
		h(n)
	}
}

// Live returns the number of connected observers.
func (o *Observers) Live() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handlers)
}

// Vitals is a scripted VitalsSource.
type Vitals struct {
	mu           sync.Mutex
	subs         map[string][]*vitalSub
	Subscribed   int
	Unsubscribed int
}

type vitalSub struct {
	fn   func(platform.VitalEvent)
	live bool
}

// NewVitals creates a source with no subscribers.
func NewVitals() *Vitals {
	return &Vitals{subs: map[string][]*vitalSub{}}
}

func (v *Vitals) Subscribe(metric string, fn func(platform.VitalEvent)) (func(), error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := &vitalSub{fn: fn, live: true}
	key := strings.ToUpper(metric)
	v.subs[key] = append(v.subs[key], s)
	v.Subscribed++
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if s.live {
			s.live = false
			v.Unsubscribed++
		}
	}, nil
}

// Report delivers an event to live subscribers of its metric.
func (v *Vitals) Report(name string, value float64) {
	v.mu.Lock()
	var fns []func(platform.VitalEvent)
	for _, s := range v.subs[strings.ToUpper(name)] {
		if s.live {
			fns = append(fns, s.fn)
		}
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn(platform.VitalEvent{Name: name, Value: value})
	}
}

// Live returns the number of live subscriptions.
func (v *Vitals) Live() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, list := range v.subs {
		for _, s := range list {
			if s.live {
				n++
			}
		}
	}
	return n
}

// Memory returns fixed heap numbers.
type Memory struct {
	Stats platform.MemoryStats
	Err   error
}

func (m Memory) Memory() (platform.MemoryStats, error) { return m.Stats, m.Err }

// Network returns a fixed connection.
type Network struct {
	Stats platform.NetworkStats
	Err   error
}

func (n Network) Network() (platform.NetworkStats, error) { return n.Stats, n.Err }

// Resources returns fixed resource timing totals.
type Resources struct {
	Stats platform.ResourceStats
	Err   error
}

func (r Resources) Resources() (platform.ResourceStats, error) { return r.Stats, r.Err }
