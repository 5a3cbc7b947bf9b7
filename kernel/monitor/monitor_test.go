package monitor_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nmxmxh/perfscope/kernel/cpu"
	"github.com/nmxmxh/perfscope/kernel/gpu"
	"github.com/nmxmxh/perfscope/kernel/gpu/gputest"
	"github.com/nmxmxh/perfscope/kernel/instrument"
	"github.com/nmxmxh/perfscope/kernel/monitor"
	"github.com/nmxmxh/perfscope/kernel/platform"
	"github.com/nmxmxh/perfscope/kernel/platform/platformtest"
	"github.com/nmxmxh/perfscope/kernel/quality"
	"github.com/nmxmxh/perfscope/kernel/runtime"
	"github.com/nmxmxh/perfscope/kernel/runtime/runtimetest"
	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

type fakeHost struct {
	frames    *platformtest.Frames
	observers *platformtest.Observers
	vitals    *platformtest.Vitals
}

func newFakeHost() (*fakeHost, platform.Host) {
	f := &fakeHost{
		frames:    platformtest.NewFrames(),
		observers: platformtest.NewObservers(),
		vitals:    platformtest.NewVitals(),
	}
	return f, platform.Host{
		Frames:    f.frames,
		Observers: f.observers,
		Vitals:    f.vitals,
		Memory:    platformtest.Memory{Stats: platform.MemoryStats{UsedBytes: 50 << 20, LimitBytes: 200 << 20}},
		UserAgent: chromeUA,
	}
}

// browserOnly disables the worker and GPU probes.
func browserOnly() monitor.Options {
	opts := monitor.DefaultOptions()
	opts.CPU = false
	opts.GPU = false
	return opts
}

func newMonitor(t *testing.T, host platform.Host, opts monitor.Options) *monitor.Monitor {
	t.Helper()
	m := monitor.New(monitor.Deps{
		Host:     host,
		Detector: runtime.NewDetector(runtimetest.Desktop(), nil),
	}, opts)
	t.Cleanup(m.Close)
	return m
}

func TestMonitor_SmoothSessionReachesFullTier(t *testing.T) {
	fake, host := newFakeHost()
	m := newMonitor(t, host, browserOnly())
	require.NoError(t, m.Start())

	fake.frames.FireEvenly(0, 1000, 60)

	snap := m.Snapshot()
	require.NotNil(t, snap.FPS)
	assert.Equal(t, 60, *snap.FPS)
	assert.Equal(t, 60, *snap.AverageFPS)
	assert.False(t, snap.IsLagging)
	assert.Equal(t, quality.TierFull, m.Quality().Tier())
	assert.Equal(t, 20, m.Quality().Config().MaxConcurrentAnimations)

	require.NotNil(t, snap.MemoryPercentage)
	assert.Equal(t, 25.0, *snap.MemoryPercentage)
	assert.Nil(t, snap.NetworkType, "network is off by default")

	require.NotNil(t, snap.CPUCores)
	assert.Equal(t, 8, *snap.CPUCores)
	assert.Equal(t, 16.0, *snap.DeviceMemory)

	assert.Equal(t, "A", m.Report().Grade)
}

func TestMonitor_LaggingSessionDropsToMinimal(t *testing.T) {
	fake, host := newFakeHost()
	m := newMonitor(t, host, browserOnly())
	require.NoError(t, m.Start())

	fake.frames.FireEvenly(0, 1000, 20)

	snap := m.Snapshot()
	assert.Equal(t, 20, *snap.FPS)
	assert.True(t, snap.IsLagging)
	assert.Equal(t, quality.TierMinimal, m.Quality().Tier())

	r := m.Report()
	assert.Equal(t, 60, r.Score)
	assert.Equal(t, "D", r.Grade)
	assert.NotEmpty(t, r.Recommendations)
}

func TestMonitor_ConstrainedBrowserFromUserAgent(t *testing.T) {
	fake, host := newFakeHost()
	host.UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	m := newMonitor(t, host, browserOnly())
	require.NoError(t, m.Start())

	fake.frames.FireEvenly(0, 1000, 35)

	snap := m.Snapshot()
	assert.False(t, snap.IsLagging, "35 fps is above the constrained lag threshold")
	assert.Equal(t, quality.TierReduced, m.Quality().Tier())
}

func TestMonitor_BrowserOverride(t *testing.T) {
	fake, host := newFakeHost()
	opts := browserOnly()
	opts.Browser = "constrained"
	m := newMonitor(t, host, opts)
	require.NoError(t, m.Start())

	fake.frames.FireEvenly(0, 1000, 60)
	assert.Equal(t, quality.TierReduced, m.Quality().Tier(), "constrained browsers never reach full")
}

func TestMonitor_VitalsAndLongTasks(t *testing.T) {
	fake, host := newFakeHost()
	m := newMonitor(t, host, browserOnly())
	require.NoError(t, m.Start())

	fake.vitals.Report("LCP", 1800)
	fake.vitals.Report("cls", 0.02)
	fake.observers.Emit(2)
	fake.observers.Emit(3)

	snap := m.Snapshot()
	assert.Equal(t, 1800.0, *snap.LCP)
	assert.Equal(t, 0.02, *snap.CLS)
	assert.Nil(t, snap.INP)
	assert.Equal(t, 5, snap.LongTasks)
}

func TestMonitor_CloseReleasesEverything(t *testing.T) {
	fake, host := newFakeHost()
	m := newMonitor(t, host, browserOnly())
	require.NoError(t, m.Start())
	require.NoError(t, m.Start())

	assert.Equal(t, 1, fake.frames.Pending())
	assert.Equal(t, len(telemetry.VitalNames), fake.vitals.Live())
	assert.Equal(t, 1, fake.observers.Live())
	assert.NotZero(t, m.PendingReleases())

	m.Close()
	m.Close()

	assert.Zero(t, fake.frames.Pending())
	assert.Equal(t, 1, fake.frames.Cancelled)
	assert.Zero(t, fake.vitals.Live())
	assert.Equal(t, len(telemetry.VitalNames), fake.vitals.Unsubscribed)
	assert.Zero(t, fake.observers.Live())
	assert.Equal(t, 1, fake.observers.Disconnected)
	assert.Zero(t, m.PendingReleases())
	assert.False(t, m.Running())

	assert.ErrorIs(t, m.Start(), monitor.ErrClosed)
	assert.ErrorIs(t, m.SetOptions(browserOnly()), monitor.ErrClosed)
}

func TestMonitor_SetOptionsGoesThroughTeardown(t *testing.T) {
	fake, host := newFakeHost()
	m := newMonitor(t, host, browserOnly())
	require.NoError(t, m.Start())

	fake.vitals.Report("LCP", 1800)
	fake.frames.FireEvenly(0, 1000, 60)
	require.NotNil(t, m.Snapshot().LCP)

	opts := browserOnly()
	opts.WebVitals = false
	opts.Memory = false
	require.NoError(t, m.SetOptions(opts))

	assert.True(t, m.Running())
	assert.Zero(t, fake.vitals.Live())
	assert.Equal(t, 1, fake.observers.Live(), "long tasks stay observed")
	assert.Equal(t, 1, fake.observers.Disconnected)
	assert.Equal(t, 1, fake.frames.Pending(), "the frame chain is restarted")
	assert.Equal(t, 1, fake.frames.Cancelled)

	snap := m.Snapshot()
	assert.Nil(t, snap.LCP, "disabled categories read as unmeasured")
	assert.Nil(t, snap.MemoryUsed)
	assert.NotNil(t, snap.FPS)

	bad := browserOnly()
	bad.Browser = "netscape"
	assert.Error(t, m.SetOptions(bad))
}

func TestMonitor_DisablingFramesFallsBackToMinimal(t *testing.T) {
	fake, host := newFakeHost()
	m := newMonitor(t, host, browserOnly())
	require.NoError(t, m.Start())

	fake.frames.FireEvenly(0, 1000, 60)
	require.Equal(t, quality.TierFull, m.Quality().Tier())

	opts := browserOnly()
	opts.FPS = false
	require.NoError(t, m.SetOptions(opts))

	assert.Nil(t, m.Snapshot().AverageFPS)
	assert.Equal(t, quality.TierMinimal, m.Quality().Tier())
	assert.Equal(t, quality.ConfigFor(quality.TierMinimal), m.Quality().Config())
	assert.False(t, m.Quality().CanAnimate(quality.PriorityLow))
}

func TestMonitor_UnsupportedHostDegradesToNil(t *testing.T) {
	m := newMonitor(t, platform.Host{}, monitor.DefaultOptions())
	require.NoError(t, m.Start())

	snap := m.Snapshot()
	assert.Nil(t, snap.FPS)
	assert.Nil(t, snap.LCP)
	assert.Nil(t, snap.MemoryUsed)
	assert.Nil(t, snap.CPUUsage)
	assert.Nil(t, snap.GPUScore)
	assert.Nil(t, snap.GPURenderer)
	assert.Equal(t, telemetry.GPUTierUnknown, snap.GPUTier)
	assert.Equal(t, 8, *snap.CPUCores)
	assert.Equal(t, quality.TierMinimal, m.Quality().Tier())

	m.Close()
	assert.Zero(t, m.PendingReleases())
}

type countingPort struct {
	cpu.Port
	mu         sync.Mutex
	terminated int
}

func (p *countingPort) Terminate() {
	p.mu.Lock()
	p.terminated++
	p.mu.Unlock()
	p.Port.Terminate()
}

func (p *countingPort) Terminated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

func TestMonitor_CPUWorkerLifecycle(t *testing.T) {
	_, host := newFakeHost()

	var ports []*countingPort
	var mu sync.Mutex
	local := cpu.LocalSpawner(cpu.LocalOptions{
		Interval:     5 * time.Millisecond,
		BaselineRuns: 1,
		SieveSize:    1000,
		Usage:        func() (float64, error) { return 42, nil },
	})
	spawn := func(onMessage func(cpu.Message), onError func(error)) (cpu.Port, error) {
		p, err := local(onMessage, onError)
		if err != nil {
			return nil, err
		}
		cp := &countingPort{Port: p}
		mu.Lock()
		ports = append(ports, cp)
		mu.Unlock()
		return cp, nil
	}

	opts := browserOnly()
	opts.CPU = true
	m := monitor.New(monitor.Deps{
		Host:     host,
		Detector: runtime.NewDetector(runtimetest.Desktop(), nil),
		Spawner:  spawn,
	}, opts)
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.CPUUsage != nil && s.CPUBaseline != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 42.0, *m.Snapshot().CPUUsage)

	m.Close()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ports, 1)
	assert.Equal(t, 1, ports[0].Terminated())
}

func TestMonitor_GPUBenchmarkLifecycle(t *testing.T) {
	_, host := newFakeHost()
	ctx := gputest.NewContext("NVIDIA Corporation", "NVIDIA GeForce RTX 4080")
	surface := &gputest.Surface{Ctx: ctx}

	gopts := gpu.DefaultOptions()
	gopts.RunDuration = 5 * time.Millisecond
	gopts.BaselineRuns = 1
	gopts.Pause = -1

	opts := browserOnly()
	opts.GPU = true
	opts.GPUInterval = 10 * time.Millisecond
	m := monitor.New(monitor.Deps{
		Host:       host,
		Detector:   runtime.NewDetector(runtimetest.Desktop(), nil),
		Surfaces:   surface.Factory(),
		GPUOptions: gopts,
	}, opts)
	require.NoError(t, m.Start())

	snap := m.Snapshot()
	require.NotNil(t, snap.GPURenderer)
	assert.Equal(t, "NVIDIA GeForce RTX 4080", *snap.GPURenderer)
	assert.Equal(t, telemetry.GPUTierHigh, snap.GPUTier)

	require.Eventually(t, func() bool {
		return m.Snapshot().GPUScore != nil
	}, 2*time.Second, 5*time.Millisecond)
	usage := *m.Snapshot().GPUUsage
	assert.GreaterOrEqual(t, usage, 0.0)
	assert.LessOrEqual(t, usage, 100.0)

	m.Close()
	assert.Equal(t, 1, surface.RemovedCount())
	assert.Equal(t, 1, ctx.Counters().Lost)
}

func TestMonitor_RecordsInstruments(t *testing.T) {
	fake, host := newFakeHost()
	metrics, err := instrument.NewMetrics(instrument.DefaultMetricsConfig())
	require.NoError(t, err)
	defer func() { _ = metrics.Shutdown(context.Background()) }()

	m := monitor.New(monitor.Deps{
		Host:     host,
		Detector: runtime.NewDetector(runtimetest.Desktop(), nil),
		Metrics:  metrics,
	}, browserOnly())
	t.Cleanup(m.Close)
	require.NoError(t, m.Start())

	fake.frames.FireEvenly(0, 1000, 60)
	fake.frames.FireEvenly(1000, 1000, 60)
	fake.observers.Emit(4)

	rm, err := metrics.Collect(context.Background())
	require.NoError(t, err)

	got := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			got[md.Name] = md.Data
		}
	}
	fps := got["perfscope.fps"].(metricdata.Histogram[int64])
	assert.Equal(t, uint64(2), fps.DataPoints[0].Count)

	transitions := got["perfscope.quality.transitions"].(metricdata.Sum[int64])
	assert.Equal(t, int64(1), transitions.DataPoints[0].Value)

	long := got["perfscope.long_tasks"].(metricdata.Sum[int64])
	assert.Equal(t, int64(4), long.DataPoints[0].Value)
}

func TestParseOptions(t *testing.T) {
	opts, err := monitor.ParseOptions(strings.NewReader(`
cpu: false
network: true
gpu_interval: 500ms
browser: constrained
`))
	require.NoError(t, err)
	assert.False(t, opts.CPU)
	assert.True(t, opts.Network)
	assert.True(t, opts.FPS, "omitted keys keep their defaults")
	assert.Equal(t, 500*time.Millisecond, opts.GPUInterval)
	assert.Equal(t, "constrained", opts.Browser)

	empty, err := monitor.ParseOptions(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, monitor.DefaultOptions(), empty)

	_, err = monitor.ParseOptions(strings.NewReader("fsp: true\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = monitor.ParseOptions(strings.NewReader("history_size: 5\nstats_window: 10\n"))
	assert.Error(t, err)
}
