package platform

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TickerFrames is a FrameScheduler that fires callbacks at a fixed display
// rate. It stands in for requestAnimationFrame outside the browser and in
// the CLI's simulated sessions.
type TickerFrames struct {
	mu      sync.Mutex
	clock   clock.Clock
	start   time.Time
	period  time.Duration
	next    FrameHandle
	pending map[FrameHandle]*clock.Timer
}

// NewTickerFrames creates a scheduler producing rate frames per second.
func NewTickerFrames(clk clock.Clock, rate float64) *TickerFrames {
	if clk == nil {
		clk = clock.New()
	}
	if rate <= 0 {
		rate = 60
	}
	return &TickerFrames{
		clock:   clk,
		start:   clk.Now(),
		period:  time.Duration(float64(time.Second) / rate),
		pending: make(map[FrameHandle]*clock.Timer),
	}
}

// SetRate changes the simulated display rate for subsequent frames.
func (f *TickerFrames) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	f.mu.Lock()
	f.period = time.Duration(float64(time.Second) / rate)
	f.mu.Unlock()
}

// RequestFrame implements FrameScheduler
func (f *TickerFrames) RequestFrame(cb func(timestampMs float64)) (FrameHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	h := f.next
	f.pending[h] = f.clock.AfterFunc(f.period, func() {
		f.mu.Lock()
		_, live := f.pending[h]
		delete(f.pending, h)
		f.mu.Unlock()
		if !live {
			return
		}
		cb(f.Now())
	})
	return h, nil
}

// CancelFrame implements FrameScheduler
func (f *TickerFrames) CancelFrame(h FrameHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.pending[h]; ok {
		t.Stop()
		delete(f.pending, h)
	}
}

// Now implements FrameScheduler
func (f *TickerFrames) Now() float64 {
	return float64(f.clock.Since(f.start)) / float64(time.Millisecond)
}

// Pending returns the number of outstanding frame requests.
func (f *TickerFrames) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
