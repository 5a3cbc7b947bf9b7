package utils

import (
	"bytes"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewLogger(LoggerConfig{Level: level, Component: "test", Output: buf}), buf
}

func TestLogger_LevelFilteringAndFields(t *testing.T) {
	logger, buf := newBufferLogger(WARN)

	logger.Info("hidden")
	logger.Warn("visible", String("probe", "battery"), Int("cores", 8))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN ]")
	assert.Contains(t, out, "[test]")
	assert.Contains(t, out, `probe="battery"`)
	assert.Contains(t, out, "cores=8")
}

func TestLogger_WithAndNamed(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG)

	child := logger.Named("gpu").With(String("session", "abc"))
	child.Debug("cycle", Float64("score", 120))

	out := buf.String()
	assert.Contains(t, out, "[test.gpu]")
	assert.Contains(t, out, `session="abc"`)
	assert.Contains(t, out, "score=120")

	// parent is unchanged
	buf.Reset()
	logger.Debug("plain")
	assert.NotContains(t, buf.String(), "session")
}

func TestLogger_NilFloatField(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG)
	var missing *float64
	logger.Info("metric", Any("lcp", missing))
	assert.Contains(t, buf.String(), "lcp=null")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestRecoverError(t *testing.T) {
	run := func() (err error) {
		defer RecoverError("probe:battery", &err)
		panic("getBattery is not a function")
	}

	err := run()
	require.Error(t, err)
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "probe:battery", pe.Op)
	assert.Contains(t, err.Error(), "getBattery")
}

func TestRecoverWarn(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG)
	func() {
		defer RecoverWarn(logger, "gpu:cycle")
		panic("context lost")
	}()
	assert.Contains(t, buf.String(), "Recovered panic")
	assert.Contains(t, buf.String(), "gpu:cycle")
}

func TestWrapError(t *testing.T) {
	base := errors.New("no context")
	err := WrapError(base, "gpu setup")
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "gpu setup: no context", err.Error())
	assert.Equal(t, "alone", WrapError(nil, "alone").Error())
}

func TestTeardown_LIFOAndIdempotent(t *testing.T) {
	logger, _ := newBufferLogger(ERROR)
	td := NewTeardown(logger)

	var order []string
	td.Register("frames", func() { order = append(order, "frames") })
	td.Register("worker", func() { order = append(order, "worker") })
	td.Register("observer", func() { order = append(order, "observer") })
	assert.Equal(t, 3, td.Len())

	td.Run()
	td.Run()

	assert.Equal(t, []string{"observer", "worker", "frames"}, order)
	assert.Equal(t, 0, td.Len())
}

func TestTeardown_PanickingStepDoesNotStopOthers(t *testing.T) {
	logger, buf := newBufferLogger(WARN)
	td := NewTeardown(logger)

	released := false
	td.Register("first", func() { released = true })
	td.Register("broken", func() { panic("terminate failed") })

	td.Run()
	assert.True(t, released)
	assert.True(t, strings.Contains(buf.String(), "teardown:broken"))
}

func TestWarnThrottle_WarnOnce(t *testing.T) {
	logger, buf := newBufferLogger(WARN)
	w := NewWarnThrottle(logger, DefaultThrottleConfig())

	assert.True(t, w.WarnOnce("battery", "Battery API unsupported"))
	assert.False(t, w.WarnOnce("battery", "Battery API unsupported"))
	assert.True(t, w.WarnOnce("network", "Network API unsupported"))
	assert.Equal(t, 2, strings.Count(buf.String(), "unsupported"))
}

func TestWarnThrottle_FirstWarnPasses(t *testing.T) {
	logger, buf := newBufferLogger(WARN)
	w := NewWarnThrottle(logger, DefaultThrottleConfig())

	assert.True(t, w.Warn("gpu-cycle", "Benchmark failed"))
	assert.Contains(t, buf.String(), `key="gpu-cycle"`)
}

func TestNewSessionID(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	a, b := newSessionID(at), newSessionID(at)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "loyw3v28-"), a)
	assert.Len(t, strings.TrimPrefix(a, "loyw3v28-"), 16)
}

func TestWarnThrottle_CloseStopsCleanup(t *testing.T) {
	logger, buf := newBufferLogger(WARN)
	before := runtime.NumGoroutine()

	w := NewWarnThrottle(logger, DefaultThrottleConfig())
	w.Close()
	w.Close()

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)
	assert.True(t, w.Warn("after-close", "Still logged"))
	assert.Contains(t, buf.String(), "Still logged")
}
