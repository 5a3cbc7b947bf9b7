package utils

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"
)

// WarnThrottle keeps recurring warnings (one per benchmark cycle, one per
// worker message) from flooding the console.
type WarnThrottle struct {
	logger *Logger

	limiter      *limiter.TokenBucket
	limiterStore *store.MemoryStore
	closeOnce    sync.Once

	onceMu   sync.Mutex
	seenOnce *bloom.BloomFilter
}

// ThrottleConfig configures a WarnThrottle
type ThrottleConfig struct {
	PerKeyRate  int64         // warnings allowed per Window per key
	Window      time.Duration // refill window
	Burst       int64
	OnceEntries uint    // expected distinct once-only keys
	OnceFPRate  float64 // bloom false-positive rate
}

// DefaultThrottleConfig allows a short burst then one warning per 10s per key.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		PerKeyRate:  1,
		Window:      10 * time.Second,
		Burst:       3,
		OnceEntries: 256,
		OnceFPRate:  0.001,
	}
}

// NewWarnThrottle creates a throttle writing to logger
func NewWarnThrottle(logger *Logger, cfg ThrottleConfig) *WarnThrottle {
	if logger == nil {
		logger = globalLogger
	}
	w := &WarnThrottle{
		logger:   logger,
		seenOnce: bloom.NewWithEstimates(cfg.OnceEntries, cfg.OnceFPRate),
	}
	w.limiterStore = store.NewMemoryStore(time.Minute)
	tb, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     cfg.PerKeyRate,
			Duration: cfg.Window,
			Burst:    cfg.Burst,
		},
		w.limiterStore,
	)
	if err != nil {
		logger.Debug("Warning throttle disabled", Err(err))
	}
	w.limiter = tb
	return w
}

// Warn logs msg unless key has exhausted its budget.
// Returns whether the line was written.
func (w *WarnThrottle) Warn(key, msg string, fields ...Field) bool {
	if w.limiter != nil && !w.limiter.Allow(key) {
		return false
	}
	w.logger.Warn(msg, append(fields, String("key", key))...)
	return true
}

// WarnOnce logs msg the first time key is seen for the session.
// Used for "capability unsupported" notices that never change.
func (w *WarnThrottle) WarnOnce(key, msg string, fields ...Field) bool {
	w.onceMu.Lock()
	seen := w.seenOnce.TestAndAddString(key)
	w.onceMu.Unlock()
	if seen {
		return false
	}
	w.logger.Warn(msg, fields...)
	return true
}

// Close stops the limiter store's cleanup goroutine. The throttle keeps
// working afterwards without expiring idle keys. Safe to call more than once.
func (w *WarnThrottle) Close() {
	w.closeOnce.Do(w.limiterStore.Close)
}
