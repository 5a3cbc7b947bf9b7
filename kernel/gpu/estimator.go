package gpu

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sony/gobreaker"

	"github.com/nmxmxh/perfscope/kernel/utils"
)

// Options tunes the benchmark. The zero value of a field selects its default.
type Options struct {
	RunDuration  time.Duration // one timed run
	BaselineRuns int
	Pause        time.Duration // between baseline runs; negative disables
	Interval     time.Duration // monitoring cycle
	Triangles    int           // per draw call

	// Breaker trips after this many consecutive failed runs and stays open
	// for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	Clock clock.Clock
	Seed  uint64
}

// DefaultOptions returns 5 x 500ms baseline runs with a 100ms pause, a 2s
// monitoring interval and 1000 triangles per draw.
func DefaultOptions() Options {
	return Options{
		RunDuration:     500 * time.Millisecond,
		BaselineRuns:    5,
		Pause:           100 * time.Millisecond,
		Interval:        2 * time.Second,
		Triangles:       1000,
		BreakerFailures: 3,
		BreakerCooldown: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RunDuration <= 0 {
		o.RunDuration = d.RunDuration
	}
	if o.BaselineRuns <= 0 {
		o.BaselineRuns = d.BaselineRuns
	}
	if o.Pause == 0 {
		o.Pause = d.Pause
	}
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.Triangles <= 0 {
		o.Triangles = d.Triangles
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = d.BreakerFailures
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = d.BreakerCooldown
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Seed == 0 {
		o.Seed = uint64(o.Clock.Now().UnixNano())
	}
	return o
}

// Info is the renderer identification. Fields are nil when the context
// does not expose them.
type Info struct {
	Vendor                 *string `json:"vendor"`
	Renderer               *string `json:"renderer"`
	Version                *string `json:"version"`
	ShadingLanguageVersion *string `json:"shadingLanguageVersion"`
	MaxTextureSize         *int    `json:"maxTextureSize"`
	Unmasked               bool    `json:"unmasked"`
}

// Result is one measured cycle.
type Result struct {
	Score              float64 `json:"score"`     // frames per second
	FrameTime          float64 `json:"frameTime"` // ms per frame
	TrianglesPerSecond float64 `json:"trianglesPerSecond"`
	Usage              float64 `json:"usage"` // percent, 0..100
}

type runStats struct {
	frames  int
	elapsed time.Duration
}

func (r runStats) score() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	ms := float64(r.elapsed) / float64(time.Millisecond)
	return math.Round(float64(r.frames) * 1000 / ms)
}

// Estimator runs the synthetic workload. Runs execute synchronously on the
// calling goroutine and busy-wait for their full duration; in the browser
// that is the main thread, so each cycle can cause visible jank.
type Estimator struct {
	opts    Options
	clk     clock.Clock
	logger  *utils.Logger
	warn    *utils.WarnThrottle
	breaker *gobreaker.CircuitBreaker

	runMu   sync.Mutex // one run at a time; guards ctx and rng
	surface Surface
	ctx     Context
	rng     *rand.Rand
	scratch []float32

	mu         sync.Mutex
	baseline   *float64
	timer      *clock.Timer
	monitoring bool
	gen        uint64
	destroyed  bool
}

// NewEstimator acquires a surface and context. A missing context is logged
// once and leaves the estimator permanently unsupported.
func NewEstimator(factory SurfaceFactory, opts Options, logger *utils.Logger) *Estimator {
	opts = opts.withDefaults()
	if logger == nil {
		logger = utils.DefaultLogger("gpu")
	}
	e := &Estimator{
		opts:    opts,
		clk:     opts.Clock,
		logger:  logger,
		warn:    utils.NewWarnThrottle(logger, utils.DefaultThrottleConfig()),
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		scratch: make([]float32, opts.Triangles*floatsPerTriangle),
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gpu-benchmark",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Benchmark breaker state changed",
				utils.String("breaker", name),
				utils.String("from", from.String()),
				utils.String("to", to.String()))
		},
	})
	e.acquire(factory)
	return e
}

func (e *Estimator) acquire(factory SurfaceFactory) {
	if factory == nil {
		e.logger.Warn("WebGL unavailable, GPU metrics disabled", utils.Err(ErrNoContext))
		return
	}
	surface, err := e.newSurface(factory)
	if err != nil || surface == nil {
		e.logger.Warn("WebGL unavailable, GPU metrics disabled", utils.Err(err))
		return
	}
	ctx, err := e.newContext(surface)
	if err != nil || ctx == nil {
		e.logger.Warn("WebGL unavailable, GPU metrics disabled", utils.Err(err))
		e.removeSurface(surface)
		return
	}
	e.surface = surface
	e.ctx = ctx
}

func (e *Estimator) newSurface(factory SurfaceFactory) (s Surface, err error) {
	defer utils.RecoverError("gpu:surface", &err)
	return factory()
}

func (e *Estimator) newContext(s Surface) (c Context, err error) {
	defer utils.RecoverError("gpu:context", &err)
	return s.Context()
}

// IsWebGLSupported reports whether a context was acquired. It never changes
// back to true for the same estimator.
func (e *Estimator) IsWebGLSupported() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.ctx != nil
}

// GetGPUInfo reads renderer identification, preferring the unmasked
// debug strings when the extension is exposed.
func (e *Estimator) GetGPUInfo() (info Info) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.ctx == nil {
		return Info{}
	}
	defer func() {
		if r := recover(); r != nil {
			e.warn.Warn("gpu:info", "Reading GPU info failed", utils.Any("panic", r))
			info = Info{}
		}
	}()

	ctx := e.ctx
	if ctx.HasExtension(DebugRendererInfo) {
		info.Vendor = stringParam(ctx, ParamUnmaskedVendor)
		info.Renderer = stringParam(ctx, ParamUnmaskedRenderer)
		info.Unmasked = info.Vendor != nil || info.Renderer != nil
	}
	if info.Vendor == nil {
		info.Vendor = stringParam(ctx, ParamVendor)
	}
	if info.Renderer == nil {
		info.Renderer = stringParam(ctx, ParamRenderer)
	}
	info.Version = stringParam(ctx, ParamVersion)
	info.ShadingLanguageVersion = stringParam(ctx, ParamShadingLanguageVersion)
	if v, ok := ctx.ParameterInt(ParamMaxTextureSize); ok {
		info.MaxTextureSize = &v
	}
	return info
}

func stringParam(ctx Context, p Param) *string {
	v, ok := ctx.ParameterString(p)
	if !ok || v == "" {
		return nil
	}
	return &v
}

// EstablishBaseline runs BaselineRuns timed runs separated by Pause and
// stores their mean score. Returns 0 when unsupported, when every run
// failed, or when ctx is cancelled before the first run completes.
func (e *Estimator) EstablishBaseline(ctx context.Context) float64 {
	if !e.IsWebGLSupported() {
		return 0
	}
	var scores []float64
	for i := 0; i < e.opts.BaselineRuns; i++ {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && e.opts.Pause > 0 && !e.pause(ctx, e.opts.Pause) {
			break
		}
		stats, err := e.run(e.opts.RunDuration)
		if err != nil {
			continue
		}
		scores = append(scores, stats.score())
	}
	if len(scores) == 0 {
		return 0
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	baseline := sum / float64(len(scores))

	e.mu.Lock()
	e.baseline = &baseline
	e.mu.Unlock()

	e.logger.Info("GPU baseline established",
		utils.Float64("baseline", baseline),
		utils.Int("runs", len(scores)))
	return baseline
}

func (e *Estimator) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-e.clk.After(d):
		return true
	}
}

// Baseline returns the stored baseline score, or nil before
// EstablishBaseline succeeded.
func (e *Estimator) Baseline() *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.baseline == nil {
		return nil
	}
	v := *e.baseline
	return &v
}

// RunBenchmark performs one timed run and returns
// round(frames*1000/actualDurationMs). Failures yield 0.
func (e *Estimator) RunBenchmark(d time.Duration) float64 {
	if !e.IsWebGLSupported() {
		return 0
	}
	stats, err := e.run(d)
	if err != nil {
		return 0
	}
	return stats.score()
}

// CurrentPerformance runs one RunDuration benchmark and derives usage
// against the baseline.
func (e *Estimator) CurrentPerformance() Result {
	if !e.IsWebGLSupported() {
		return Result{}
	}
	stats, err := e.run(e.opts.RunDuration)
	if err != nil {
		return Result{}
	}
	score := stats.score()
	res := Result{
		Score:              score,
		TrianglesPerSecond: score * float64(e.opts.Triangles),
		Usage:              Usage(score, e.Baseline()),
	}
	if stats.frames > 0 {
		res.FrameTime = float64(stats.elapsed.Microseconds()) / 1000 / float64(stats.frames)
	}
	return res
}

// Usage estimates load as the throughput drop against baseline, plus a
// fixed 5 point floor, clamped to [0, 100]. No usable baseline means 0.
func Usage(current float64, baseline *float64) float64 {
	if baseline == nil || *baseline <= 0 || math.IsNaN(current) || math.IsInf(current, 0) {
		return 0
	}
	ratio := current / *baseline
	u := (1-ratio)*100 + 5
	return math.Max(0, math.Min(100, u))
}

// run executes one breaker-guarded timed run.
func (e *Estimator) run(d time.Duration) (runStats, error) {
	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.draw(d)
	})
	if err != nil {
		e.warn.Warn("gpu:run", "GPU benchmark run failed", utils.Err(err))
		return runStats{}, err
	}
	return out.(runStats), nil
}

func (e *Estimator) draw(d time.Duration) (stats runStats, err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	defer utils.RecoverError("gpu:draw", &err)

	ctx := e.ctx
	if ctx == nil {
		return runStats{}, ErrNoContext
	}

	program, err := ctx.CompileProgram(vertexShader, fragmentShader)
	if err != nil {
		return runStats{}, utils.WrapError(err, "compile benchmark program")
	}
	defer ctx.DeleteProgram(program)

	buffer, err := ctx.CreateBuffer()
	if err != nil {
		return runStats{}, utils.WrapError(err, "create vertex buffer")
	}
	defer ctx.DeleteBuffer(buffer)

	ctx.UseProgram(program)

	start := e.clk.Now()
	for e.clk.Since(start) < d {
		e.fillTriangles()
		ctx.BufferData(buffer, e.scratch)
		ctx.BindAttributes(program, buffer)
		ctx.SetTime(program, float32(e.clk.Since(start).Seconds()))
		ctx.DrawTriangles(e.opts.Triangles)
		ctx.Finish()
		stats.frames++
	}
	stats.elapsed = e.clk.Since(start)

	if glErr := ctx.Err(); glErr != nil {
		return runStats{}, fmt.Errorf("gpu: draw: %w", glErr)
	}
	return stats, nil
}

// fillTriangles writes random positions in clip space and random colors.
func (e *Estimator) fillTriangles() {
	buf := e.scratch
	for i := 0; i < len(buf); i += floatsPerVertex {
		buf[i] = e.rng.Float32()*2 - 1
		buf[i+1] = e.rng.Float32()*2 - 1
		buf[i+2] = e.rng.Float32()
		buf[i+3] = e.rng.Float32()
		buf[i+4] = e.rng.Float32()
	}
}

// StartMonitoring runs CurrentPerformance immediately and then every
// Interval until StopMonitoring, delivering each Result to cb. Calling it
// while already monitoring, or without a context, does nothing.
func (e *Estimator) StartMonitoring(cb func(Result)) {
	if !e.IsWebGLSupported() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitoring || e.destroyed || cb == nil {
		return
	}
	e.monitoring = true
	e.gen++
	gen := e.gen
	e.timer = e.clk.AfterFunc(0, func() { e.cycle(gen, cb) })
}

func (e *Estimator) cycle(gen uint64, cb func(Result)) {
	if !e.current(gen) {
		return
	}
	res := e.CurrentPerformance()
	if e.current(gen) {
		e.deliver(cb, res)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitoring && e.gen == gen {
		e.timer = e.clk.AfterFunc(e.opts.Interval, func() { e.cycle(gen, cb) })
	}
}

func (e *Estimator) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitoring && e.gen == gen
}

func (e *Estimator) deliver(cb func(Result), res Result) {
	defer utils.RecoverWarn(e.logger, "gpu:monitor")
	cb(res)
}

// Monitoring reports whether a cycle is scheduled or running.
func (e *Estimator) Monitoring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitoring
}

// StopMonitoring cancels the pending cycle. A cycle already drawing
// finishes but its result is dropped.
func (e *Estimator) StopMonitoring() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.monitoring {
		return
	}
	e.monitoring = false
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Destroy stops monitoring, loses the context and removes the canvas.
// Safe to call more than once.
func (e *Estimator) Destroy() {
	e.StopMonitoring()

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.baseline = nil
	e.mu.Unlock()

	// waits for an in-flight run
	e.runMu.Lock()
	ctx, surface := e.ctx, e.surface
	e.ctx, e.surface = nil, nil
	e.runMu.Unlock()

	if ctx != nil {
		e.loseContext(ctx)
	}
	if surface != nil {
		e.removeSurface(surface)
	}
	e.warn.Close()
}

func (e *Estimator) loseContext(ctx Context) {
	defer utils.RecoverWarn(e.logger, "gpu:lose")
	ctx.Lose()
}

func (e *Estimator) removeSurface(s Surface) {
	defer utils.RecoverWarn(e.logger, "gpu:remove")
	s.Remove()
}

// BreakerState exposes the benchmark breaker state for diagnostics.
func (e *Estimator) BreakerState() string {
	return e.breaker.State().String()
}
