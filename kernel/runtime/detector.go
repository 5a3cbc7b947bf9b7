package runtime

import (
	"sync"

	"github.com/nmxmxh/perfscope/kernel/utils"
)

// Detector computes HardwareInfo once and caches it until Refresh.
type Detector struct {
	mu     sync.Mutex
	env    Environment
	cached *HardwareInfo
	passes int
	logger *utils.Logger
}

// NewDetector creates a detector over env. Tests construct their own;
// production code uses Default.
func NewDetector(env Environment, logger *utils.Logger) *Detector {
	if logger == nil {
		logger = utils.DefaultLogger("hardware")
	}
	return &Detector{env: env, logger: logger}
}

var (
	defaultOnce     sync.Once
	defaultDetector *Detector
)

// Default returns the process-wide detector, constructing it on first use.
func Default() *Detector {
	defaultOnce.Do(func() {
		defaultDetector = NewDetector(DefaultEnvironment(), nil)
	})
	return defaultDetector
}

// DetectHardware runs a detection pass on first call and returns the
// cached result afterwards.
func (d *Detector) DetectHardware() HardwareInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		info := d.detect().Clone()
		d.cached = &info
		d.passes++
	}
	return d.cached.Clone()
}

// Refresh drops the cache; the next DetectHardware recomputes.
func (d *Detector) Refresh() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

// Passes returns how many detection passes have run.
func (d *Detector) Passes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passes
}

// IsHighPerformanceDevice reports cores >= 8, a high GPU tier, or at least
// 8 GB of device memory.
func (d *Detector) IsHighPerformanceDevice() bool {
	return IsHighPerformance(d.DetectHardware())
}

// IsMobileDevice reports a mobile platform string or any touch points.
func (d *Detector) IsMobileDevice() bool {
	return IsMobile(d.DetectHardware())
}

func (d *Detector) detect() HardwareInfo {
	info := unknownHardware()
	env := d.env
	if env == nil {
		d.logger.Warn("No hardware environment, reporting unknown")
		return info
	}

	if v, ok := section(d, "cpu", env.CPU); ok {
		if v.Architecture == "" {
			v.Architecture = "unknown"
		}
		if v.Vendor == "" {
			v.Vendor = "unknown"
		}
		info.CPU = v
	}
	if v, ok := section(d, "memory", env.Memory); ok {
		info.Memory = v
	}
	if v, ok := section(d, "gpu", env.GPU); ok {
		info.GPU = GPUInfo{
			Vendor:   nonEmpty(v.Vendor),
			Renderer: nonEmpty(v.Renderer),
			Tier:     ClassifyGPU(v.Renderer),
		}
	}
	if v, ok := section(d, "display", env.Display); ok {
		info.Display = v
	}
	if v, ok := section(d, "platform", env.Platform); ok {
		info.Platform = v
	}
	if v, ok := section(d, "battery", env.Battery); ok {
		info.Battery = v
	}
	if v, ok := section(d, "network", env.Network); ok {
		info.Network = v
	}
	info.Capabilities = d.capabilities(env)

	d.logger.Info("Hardware detected",
		utils.Any("cores", derefOr(info.CPU.Cores, 0)),
		utils.String("arch", info.CPU.Architecture),
		utils.String("gpu_tier", string(info.GPU.Tier)),
		utils.Any("device_memory_gb", info.Memory.DeviceMemoryGB),
		utils.Bool("webgl", info.Capabilities.WebGL),
		utils.Bool("mobile", IsMobile(info)),
	)
	return info
}

// section runs one probe; an error or panic leaves the section unknown.
func section[T any](d *Detector, name string, probe func() (T, error)) (v T, ok bool) {
	var err error
	func() {
		defer utils.RecoverError("hardware:"+name, &err)
		v, err = probe()
	}()
	if err != nil {
		d.logger.Debug("Hardware probe unavailable", utils.String("probe", name), utils.Err(err))
		var zero T
		return zero, false
	}
	return v, true
}

func (d *Detector) capabilities(env Environment) Capabilities {
	var caps Capabilities
	var probes []FlagProbe
	func() {
		defer utils.RecoverWarn(d.logger, "hardware:capabilities")
		probes = env.CapabilityProbes()
	}()

	flags := map[string]*bool{
		"webgl":          &caps.WebGL,
		"webgl2":         &caps.WebGL2,
		"webgpu":         &caps.WebGPU,
		"webassembly":    &caps.WebAssembly,
		"workers":        &caps.Workers,
		"localStorage":   &caps.LocalStorage,
		"sessionStorage": &caps.SessionStorage,
		"indexedDB":      &caps.IndexedDB,
	}
	for _, p := range probes {
		dst, ok := flags[p.Name]
		if !ok || p.Check == nil {
			continue
		}
		*dst = d.check(p)
	}
	return caps
}

func (d *Detector) check(p FlagProbe) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("Capability probe threw", utils.String("probe", p.Name), utils.Any("reason", r))
			ok = false
		}
	}()
	return p.Check()
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// DetectHardware runs or returns the cached pass of the default detector.
func DetectHardware() HardwareInfo { return Default().DetectHardware() }

// Refresh invalidates the default detector's cache.
func Refresh() { Default().Refresh() }

// IsHighPerformanceDevice asks the default detector.
func IsHighPerformanceDevice() bool { return Default().IsHighPerformanceDevice() }

// IsMobileDevice asks the default detector.
func IsMobileDevice() bool { return Default().IsMobileDevice() }
