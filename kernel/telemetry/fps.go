package telemetry

import (
	"math"
	"sync"

	"github.com/nmxmxh/perfscope/kernel/platform"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

// SampleIntervalMs is the span one FPS sample covers.
const SampleIntervalMs = 1000.0

// FPSSampler counts frames and yields one sample per elapsed second.
type FPSSampler struct {
	frames int
	last   float64
}

// Reset starts a new measurement span at originMs.
func (s *FPSSampler) Reset(originMs float64) {
	s.frames = 0
	s.last = originMs
}

// Frame records a frame at tsMs. When at least a second has elapsed since
// the previous sample it returns round(frames*1000/elapsed).
func (s *FPSSampler) Frame(tsMs float64) (fps int, ok bool) {
	s.frames++
	elapsed := tsMs - s.last
	if elapsed < SampleIntervalMs {
		return 0, false
	}
	fps = int(math.Round(float64(s.frames) * 1000 / elapsed))
	s.frames = 0
	s.last = tsMs
	return fps, true
}

// FrameLoop drives an FPSSampler from a FrameScheduler: one callback chain
// per session, re-requested every frame until Stop.
type FrameLoop struct {
	mu       sync.Mutex
	frames   platform.FrameScheduler
	sampler  FPSSampler
	onSample func(fps int)
	logger   *utils.Logger

	active  bool
	pending bool
	handle  platform.FrameHandle
}

// NewFrameLoop creates a stopped loop.
func NewFrameLoop(frames platform.FrameScheduler, onSample func(int), logger *utils.Logger) *FrameLoop {
	if logger == nil {
		logger = utils.DefaultLogger("fps")
	}
	return &FrameLoop{frames: frames, onSample: onSample, logger: logger}
}

// Start begins sampling. Returns platform.ErrUnsupported without a scheduler.
func (l *FrameLoop) Start() error {
	if l.frames == nil {
		return platform.ErrUnsupported
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return nil
	}
	l.active = true
	l.sampler.Reset(l.frames.Now())
	return l.requestLocked()
}

// Stop cancels the pending frame request. Safe to call repeatedly.
func (l *FrameLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return
	}
	l.active = false
	if l.pending {
		l.frames.CancelFrame(l.handle)
		l.pending = false
		l.handle = 0
	}
}

// Active reports whether the chain is running.
func (l *FrameLoop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *FrameLoop) requestLocked() error {
	h, err := l.frames.RequestFrame(l.tick)
	if err != nil {
		l.active = false
		return utils.WrapError(err, "request frame")
	}
	l.handle = h
	l.pending = true
	return nil
}

func (l *FrameLoop) tick(ts float64) {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.pending = false
	fps, ok := l.sampler.Frame(ts)
	l.mu.Unlock()

	if ok && l.onSample != nil {
		l.emit(fps)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active && !l.pending {
		if err := l.requestLocked(); err != nil {
			l.logger.Warn("Frame chain stopped", utils.Err(err))
		}
	}
}

func (l *FrameLoop) emit(fps int) {
	defer utils.RecoverWarn(l.logger, "fps:sample")
	l.onSample(fps)
}
