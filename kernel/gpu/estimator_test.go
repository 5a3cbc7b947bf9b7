package gpu_test

import (
	"context"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/perfscope/kernel/gpu"
	"github.com/nmxmxh/perfscope/kernel/gpu/gputest"
)

// mockEstimator costs each frame frameCost on a mock clock.
func mockEstimator(t *testing.T, frameCost *time.Duration) (*gpu.Estimator, *gputest.Context, *gputest.Surface) {
	t.Helper()
	mock := clock.NewMock()
	ctx := gputest.NewContext("NVIDIA Corporation", "NVIDIA GeForce RTX 4080")
	ctx.OnFinish = func() { mock.Add(*frameCost) }
	surface := &gputest.Surface{Ctx: ctx}

	opts := gpu.DefaultOptions()
	opts.Clock = mock
	opts.Pause = -1
	opts.Seed = 7
	e := gpu.NewEstimator(surface.Factory(), opts, nil)
	t.Cleanup(e.Destroy)
	return e, ctx, surface
}

func TestEstimator_NoContext(t *testing.T) {
	surface := &gputest.Surface{}
	e := gpu.NewEstimator(surface.Factory(), gpu.DefaultOptions(), nil)

	assert.False(t, e.IsWebGLSupported())
	assert.Equal(t, gpu.Info{}, e.GetGPUInfo())
	assert.Zero(t, e.EstablishBaseline(context.Background()))
	assert.Nil(t, e.Baseline())
	assert.Zero(t, e.RunBenchmark(time.Second))
	assert.Equal(t, gpu.Result{}, e.CurrentPerformance())
	assert.Equal(t, 1, surface.RemovedCount(), "canvas is removed when no context is available")

	e.Destroy()
	e.Destroy()
	assert.Equal(t, 1, surface.RemovedCount())
}

func TestEstimator_NilFactory(t *testing.T) {
	e := gpu.NewEstimator(nil, gpu.DefaultOptions(), nil)
	assert.False(t, e.IsWebGLSupported())
	e.StartMonitoring(func(gpu.Result) { t.Error("unexpected cycle") })
	assert.False(t, e.Monitoring())
	e.Destroy()
}

func TestEstimator_GetGPUInfo(t *testing.T) {
	cost := 10 * time.Millisecond
	e, ctx, _ := mockEstimator(t, &cost)

	info := e.GetGPUInfo()
	require.NotNil(t, info.Renderer)
	assert.Equal(t, "NVIDIA GeForce RTX 4080", *info.Renderer)
	assert.Equal(t, "NVIDIA Corporation", *info.Vendor)
	assert.True(t, info.Unmasked)
	assert.Equal(t, 16384, *info.MaxTextureSize)
	assert.Nil(t, info.ShadingLanguageVersion)

	ctx.Extensions = map[string]bool{}
	info = e.GetGPUInfo()
	assert.Equal(t, "WebKit WebGL", *info.Renderer)
	assert.False(t, info.Unmasked)
}

func TestEstimator_BaselineIsMeanOfRuns(t *testing.T) {
	cost := 10 * time.Millisecond
	e, ctx, _ := mockEstimator(t, &cost)

	baseline := e.EstablishBaseline(context.Background())
	assert.Equal(t, 100.0, baseline)
	require.NotNil(t, e.Baseline())
	assert.Equal(t, 100.0, *e.Baseline())

	c := ctx.Counters()
	assert.Equal(t, 5, c.ProgramsCreated)
	assert.Equal(t, c.ProgramsCreated, c.ProgramsDeleted)
	assert.Equal(t, c.BuffersCreated, c.BuffersDeleted)
	assert.Equal(t, 250, c.Draws)
	assert.Equal(t, 250*1000, c.TrianglesDrawn)
	assert.Equal(t, 1000*3*5, c.LastVertexFloats)
}

func TestEstimator_CancelledBaseline(t *testing.T) {
	cost := 10 * time.Millisecond
	e, _, _ := mockEstimator(t, &cost)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, e.EstablishBaseline(ctx))
	assert.Nil(t, e.Baseline())
}

func TestEstimator_CurrentPerformanceAgainstBaseline(t *testing.T) {
	cost := 10 * time.Millisecond
	e, _, _ := mockEstimator(t, &cost)

	// no baseline yet
	res := e.CurrentPerformance()
	assert.Equal(t, 100.0, res.Score)
	assert.Zero(t, res.Usage)

	e.EstablishBaseline(context.Background())
	cost = 20 * time.Millisecond
	res = e.CurrentPerformance()
	assert.Equal(t, 50.0, res.Score)
	assert.InDelta(t, 20.0, res.FrameTime, 0.001)
	assert.Equal(t, 50000.0, res.TrianglesPerSecond)
	assert.InDelta(t, 55.0, res.Usage, 0.001)

	assert.Equal(t, 50.0, e.RunBenchmark(400*time.Millisecond))
}

func TestUsage_AlwaysWithinBounds(t *testing.T) {
	assert.Zero(t, gpu.Usage(50, nil))
	zero := 0.0
	assert.Zero(t, gpu.Usage(50, &zero))

	base := 100.0
	assert.Equal(t, 5.0, gpu.Usage(100, &base))
	assert.Equal(t, 100.0, gpu.Usage(0, &base))
	assert.Equal(t, 0.0, gpu.Usage(500, &base))
	assert.Zero(t, gpu.Usage(math.NaN(), &base))

	for cur := -50.0; cur <= 400; cur += 7.5 {
		for _, b := range []float64{0.5, 1, 60, 144, 1e6} {
			u := gpu.Usage(cur, &b)
			assert.GreaterOrEqual(t, u, 0.0)
			assert.LessOrEqual(t, u, 100.0)
		}
	}
}

func TestEstimator_BreakerStopsHammeringBrokenContext(t *testing.T) {
	cost := 100 * time.Millisecond
	e, ctx, _ := mockEstimator(t, &cost)
	ctx.FailDraws = true

	for i := 0; i < 3; i++ {
		assert.Zero(t, e.RunBenchmark(500*time.Millisecond))
	}
	assert.Equal(t, "open", e.BreakerState())

	draws := ctx.Counters().Draws
	assert.Equal(t, gpu.Result{}, e.CurrentPerformance())
	assert.Equal(t, draws, ctx.Counters().Draws, "open breaker skips GPU work")
}

func TestEstimator_PanicInDrawIsRecovered(t *testing.T) {
	cost := 10 * time.Millisecond
	e, ctx, _ := mockEstimator(t, &cost)
	ctx.PanicOnDraw = true

	assert.NotPanics(t, func() {
		assert.Zero(t, e.RunBenchmark(500*time.Millisecond))
	})
	c := ctx.Counters()
	assert.Equal(t, 1, c.ProgramsDeleted)
	assert.Equal(t, 1, c.BuffersDeleted)
	assert.True(t, e.IsWebGLSupported())
}

func TestEstimator_MonitoringLifecycle(t *testing.T) {
	ctx := gputest.NewContext("Apple", "Apple M2")
	surface := &gputest.Surface{Ctx: ctx}
	opts := gpu.DefaultOptions()
	opts.RunDuration = 2 * time.Millisecond
	opts.Interval = 5 * time.Millisecond
	opts.Pause = -1
	e := gpu.NewEstimator(surface.Factory(), opts, nil)

	var mu sync.Mutex
	var results []gpu.Result
	e.StartMonitoring(func(r gpu.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})
	e.StartMonitoring(func(gpu.Result) { t.Error("second monitor must not start") })
	assert.True(t, e.Monitoring())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	e.StopMonitoring()
	e.StopMonitoring()
	assert.False(t, e.Monitoring())

	mu.Lock()
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
		assert.Zero(t, r.Usage)
	}
	mu.Unlock()

	e.Destroy()
	e.Destroy()
	assert.Equal(t, 1, ctx.Counters().Lost)
	assert.Equal(t, 1, surface.RemovedCount())
	assert.False(t, e.IsWebGLSupported())

	e.StartMonitoring(func(gpu.Result) { t.Error("destroyed estimator must not monitor") })
	assert.False(t, e.Monitoring())
}

func TestEstimator_DestroyReleasesBackgroundWork(t *testing.T) {
	before := runtime.NumGoroutine()

	for i := 0; i < 50; i++ {
		e := gpu.NewEstimator(nil, gpu.Options{}, nil)
		e.Destroy()
		e.Destroy()
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond, "goroutines left after Destroy: %d, started with %d", runtime.NumGoroutine(), before)
}
