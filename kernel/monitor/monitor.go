// Package monitor runs a monitoring session: it owns the aggregator and
// the quality controller, starts the probes selected by Options and
// funnels disable, option changes and shutdown through one teardown path.
package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/nmxmxh/perfscope/kernel/cpu"
	"github.com/nmxmxh/perfscope/kernel/gpu"
	"github.com/nmxmxh/perfscope/kernel/instrument"
	"github.com/nmxmxh/perfscope/kernel/platform"
	"github.com/nmxmxh/perfscope/kernel/quality"
	"github.com/nmxmxh/perfscope/kernel/runtime"
	"github.com/nmxmxh/perfscope/kernel/telemetry"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("monitor: closed")

// Deps are the host bindings a session runs against. Nil members mean the
// capability is unavailable.
type Deps struct {
	Host       platform.Host
	Detector   *runtime.Detector
	Spawner    cpu.Spawner
	Surfaces   gpu.SurfaceFactory
	GPUOptions gpu.Options
	// Metrics, when set, receives every sample. The caller owns shutdown.
	Metrics *instrument.Metrics
	Logger  *utils.Logger
}

// Report is the scored summary of a snapshot.
type Report struct {
	Score           int      `json:"score"`
	Grade           string   `json:"grade"`
	Recommendations []string `json:"recommendations"`
}

// Monitor is one monitoring session.
type Monitor struct {
	mu       sync.Mutex
	deps     Deps
	opts     Options
	running  bool
	closed   bool
	teardown *utils.Teardown

	agg     *telemetry.Aggregator
	quality *quality.Controller
	warn    *utils.WarnThrottle
	logger  *utils.Logger
}

// New creates a stopped monitor. Window sizes are taken from opts here and
// stay fixed for the monitor's lifetime.
func New(deps Deps, opts Options) *Monitor {
	logger := deps.Logger
	if logger == nil {
		logger = utils.DefaultLogger("monitor")
	}
	if deps.Detector == nil {
		deps.Detector = runtime.Default()
	}
	m := &Monitor{
		deps:   deps,
		opts:   opts,
		logger: logger,
		warn:   utils.NewWarnThrottle(logger, utils.DefaultThrottleConfig()),
	}
	m.agg = telemetry.NewAggregator(opts.telemetryConfig(), logger.Named("aggregator"))
	m.quality = quality.NewController(telemetry.BrowserStandard, logger.Named("quality"))
	m.teardown = utils.NewTeardown(logger.Named("teardown"))
	return m
}

// Start brings up every enabled probe. Starting a running monitor is a
// no-op. Unsupported capabilities are logged once and skipped; only a
// closed monitor returns an error.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}
	m.running = true
	m.startLocked()
	return nil
}

// Stop releases every probe but keeps the last snapshot. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// SetOptions applies new options through the same teardown path as Stop,
// then restarts if the monitor was running.
func (m *Monitor) SetOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	wasRunning := m.running
	m.stopLocked()
	m.opts = opts
	if wasRunning {
		m.running = true
		m.startLocked()
	}
	return nil
}

// Close stops the session for good. Safe to call more than once.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.stopLocked()
	m.closed = true
	m.warn.Close()
	m.logger.Info("Monitor closed")
}

// Running reports whether probes are active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Options returns the active options.
func (m *Monitor) Options() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// Snapshot returns a copy of the current metrics.
func (m *Monitor) Snapshot() telemetry.MetricsSnapshot {
	return m.agg.Snapshot()
}

// Subscribe registers fn for every published snapshot.
func (m *Monitor) Subscribe(fn telemetry.Subscriber) (cancel func()) {
	return m.agg.Subscribe(fn)
}

// Quality exposes the tier controller.
func (m *Monitor) Quality() *quality.Controller {
	return m.quality
}

// Hardware returns the cached hardware profile.
func (m *Monitor) Hardware() runtime.HardwareInfo {
	return m.deps.Detector.DetectHardware()
}

// RefreshHardware recomputes the hardware profile and republishes the
// facts the snapshot carries.
func (m *Monitor) RefreshHardware() runtime.HardwareInfo {
	m.deps.Detector.Refresh()
	hw := m.deps.Detector.DetectHardware()
	m.publishHardware(m.agg, hw)
	return hw
}

// Report scores the current snapshot.
func (m *Monitor) Report() Report {
	snap := m.agg.Snapshot()
	return Report{
		Score:           telemetry.Score(snap),
		Grade:           telemetry.Grade(snap),
		Recommendations: telemetry.Recommendations(snap),
	}
}

// PendingReleases returns how many teardown steps are registered. Zero
// after Stop or Close.
func (m *Monitor) PendingReleases() int {
	return m.teardown.Len()
}

func (m *Monitor) stopLocked() {
	if !m.running {
		return
	}
	m.running = false
	m.teardown.Run()
	m.logger.Debug("Monitor stopped")
}

func (m *Monitor) startLocked() {
	opts := m.opts
	host := m.deps.Host
	emit := m.emitter()

	class := telemetry.ClassifyBrowser(host.UserAgent)
	if c, ok := telemetry.ParseBrowserClass(opts.Browser); ok {
		class = c
	}
	m.agg.SetBrowserClass(class)
	m.quality.SetBrowserClass(class)

	// Attached before clearing so a cleared frame category drops the tier
	// to minimal instead of leaving the last one in place.
	m.teardown.Register("quality", m.quality.Attach(m.agg))
	if metrics := m.deps.Metrics; metrics != nil {
		m.teardown.Register("quality:metrics", m.quality.Subscribe(func(ev quality.Evaluation) {
			metrics.RecordEvaluation(context.Background(), ev)
		}))
	}

	m.clearDisabled(opts)
	m.publishHardware(emit, m.deps.Detector.DetectHardware())

	if opts.FPS {
		m.startFrames(emit, opts)
	}
	if opts.WebVitals || opts.LongTasks {
		vc := telemetry.NewVitalsCollector(host.Vitals, host.Observers, emit, m.warn, m.logger.Named("vitals"))
		vc.Enable(opts.WebVitals, opts.LongTasks)
		m.teardown.Register("vitals", vc.Disable)
	}
	if opts.CPU {
		s := cpu.NewSession(m.deps.Spawner, emit, m.warn, m.logger.Named("cpu"))
		s.Start()
		m.teardown.Register("cpu", s.Stop)
	}
	if opts.GPU {
		m.startGPU(emit, opts)
	}

	m.logger.Info("Monitor started",
		utils.String("browser", class.String()),
		utils.Bool("fps", opts.FPS),
		utils.Bool("vitals", opts.WebVitals),
		utils.Bool("cpu", opts.CPU),
		utils.Bool("gpu", opts.GPU))
}

// emitter routes updates into the aggregator, recording them on the way
// when instruments are attached.
func (m *Monitor) emitter() telemetry.Emitter {
	metrics := m.deps.Metrics
	if metrics == nil {
		return m.agg
	}
	return telemetry.EmitterFunc(func(u telemetry.Update) {
		ctx := context.Background()
		switch u := u.(type) {
		case telemetry.FrameSample:
			metrics.RecordFPS(ctx, u.FPS)
		case telemetry.LongTaskBatch:
			metrics.RecordLongTasks(ctx, u.Entries)
		case telemetry.CPUSample:
			if u.Usage != nil {
				metrics.RecordCPUUsage(ctx, *u.Usage)
			}
		}
		m.agg.Apply(u)
	})
}

// clearDisabled resets categories whose option is off so they read as
// unmeasured rather than stale.
func (m *Monitor) clearDisabled(opts Options) {
	for _, c := range []struct {
		on  bool
		cat telemetry.Category
	}{
		{opts.FPS, telemetry.CategoryFrame},
		{opts.WebVitals, telemetry.CategoryVitals},
		{opts.Memory, telemetry.CategoryMemory},
		{opts.Network, telemetry.CategoryNetwork},
		{opts.Resources, telemetry.CategoryResources},
		{opts.CPU, telemetry.CategoryCPU},
		{opts.GPU, telemetry.CategoryGPU},
	} {
		if !c.on {
			m.agg.Apply(telemetry.Clear{Target: c.cat})
		}
	}
}

func (m *Monitor) publishHardware(emit telemetry.Emitter, hw runtime.HardwareInfo) {
	if hw.CPU.Cores != nil {
		emit.Apply(telemetry.CPUCores{Cores: *hw.CPU.Cores})
	}
	emit.Apply(telemetry.HardwareSample{DeviceMemoryGB: hw.Memory.DeviceMemoryGB})
}

func (m *Monitor) startFrames(emit telemetry.Emitter, opts Options) {
	host := m.deps.Host
	loop := telemetry.NewFrameLoop(host.Frames, func(fps int) {
		emit.Apply(telemetry.FrameSample{FPS: fps})
		m.pollOptional(emit, opts)
	}, m.logger.Named("fps"))

	if err := loop.Start(); err != nil {
		m.warn.WarnOnce("fps:unsupported", "Frame sampling unavailable", utils.Err(err))
		return
	}
	m.teardown.Register("fps", loop.Stop)

	if opts.Memory && host.Memory == nil {
		m.warn.WarnOnce("memory:unsupported", "Heap memory API unavailable")
	}
	if opts.Network && host.Network == nil {
		m.warn.WarnOnce("network:unsupported", "Network Information API unavailable")
	}
	if opts.Resources && host.Resources == nil {
		m.warn.WarnOnce("resources:unsupported", "Resource timing unavailable")
	}
}

// pollOptional reads the optional probes alongside each frame sample.
func (m *Monitor) pollOptional(emit telemetry.Emitter, opts Options) {
	host := m.deps.Host
	if opts.Memory && host.Memory != nil {
		if st, err := host.Memory.Memory(); err != nil {
			m.warn.Warn("memory:read", "Heap memory read failed", utils.Err(err))
		} else {
			emit.Apply(telemetry.MemorySample{UsedBytes: st.UsedBytes, LimitBytes: st.LimitBytes})
		}
	}
	if opts.Network && host.Network != nil {
		if st, err := host.Network.Network(); err != nil {
			m.warn.Warn("network:read", "Network read failed", utils.Err(err))
		} else {
			emit.Apply(telemetry.NetworkSample{
				EffectiveType: st.EffectiveType,
				DownlinkMbps:  st.DownlinkMbps,
				RTTMs:         st.RTTMs,
				SaveData:      st.SaveData,
			})
		}
	}
	if opts.Resources && host.Resources != nil {
		if st, err := host.Resources.Resources(); err != nil {
			m.warn.Warn("resources:read", "Resource timing read failed", utils.Err(err))
		} else {
			emit.Apply(telemetry.ResourceSample{Count: st.Count, TransferSize: st.TransferSize})
		}
	}
}

func (m *Monitor) startGPU(emit telemetry.Emitter, opts Options) {
	gopts := m.deps.GPUOptions
	if opts.GPUInterval > 0 {
		gopts.Interval = opts.GPUInterval
	}
	est := gpu.NewEstimator(m.deps.Surfaces, gopts, m.logger.Named("gpu"))
	m.teardown.Register("gpu", est.Destroy)

	info := est.GetGPUInfo()
	renderer := ""
	if info.Renderer != nil {
		renderer = *info.Renderer
	}
	emit.Apply(telemetry.GPUIdentity{
		Vendor:   info.Vendor,
		Renderer: info.Renderer,
		Tier:     runtime.ClassifyGPU(renderer),
	})

	if !est.IsWebGLSupported() {
		m.warn.WarnOnce("gpu:unsupported", "WebGL unavailable, GPU metrics disabled")
		return
	}

	metrics := m.deps.Metrics
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer utils.RecoverWarn(m.logger, "gpu:baseline")
		baseline := est.EstablishBaseline(ctx)
		if ctx.Err() != nil {
			return
		}
		m.logger.Debug("GPU baseline established", utils.Float64("score", baseline))
		est.StartMonitoring(func(res gpu.Result) {
			emit.Apply(telemetry.GPUSample{Score: res.Score, Usage: res.Usage})
			if metrics != nil {
				metrics.RecordGPU(context.Background(), res)
			}
		})
	}()

	// Runs before Destroy: the baseline goroutine must be gone first.
	m.teardown.Register("gpu:baseline", func() {
		cancel()
		<-done
	})
}
