// Package telemetry holds the live metrics state of a monitoring session:
// the snapshot type, the reducer that applies per-category updates to it,
// the frame-rate sampler and the Web Vitals / long-task collector.
package telemetry

// GPUTier is a coarse classification of graphics capability.
type GPUTier string

const (
	GPUTierLow     GPUTier = "low"
	GPUTierMedium  GPUTier = "medium"
	GPUTierHigh    GPUTier = "high"
	GPUTierUnknown GPUTier = "unknown"
)

// ThermalState is derived from sustained CPU/GPU usage.
type ThermalState string

const (
	ThermalNominal  ThermalState = "nominal"
	ThermalFair     ThermalState = "fair"
	ThermalSerious  ThermalState = "serious"
	ThermalCritical ThermalState = "critical"
	ThermalUnknown  ThermalState = "unknown"
)

// MetricsSnapshot is the aggregate state of a session. Pointer fields are
// nil until measured (JSON null); they never carry sentinel values.
type MetricsSnapshot struct {
	// Frame
	FPS        *int  `json:"fps"`
	AverageFPS *int  `json:"averageFps"`
	MinFPS     *int  `json:"minFps"`
	MaxFPS     *int  `json:"maxFps"`
	IsLagging  bool  `json:"isLagging"`
	FPSHistory []int `json:"fpsHistory"`

	// Perceptual
	LCP  *float64 `json:"lcp"`
	INP  *float64 `json:"inp"`
	CLS  *float64 `json:"cls"`
	FCP  *float64 `json:"fcp"`
	TTFB *float64 `json:"ttfb"`

	// Resource
	MemoryUsed       *float64 `json:"memoryUsed"`
	MemoryLimit      *float64 `json:"memoryLimit"`
	MemoryPercentage *float64 `json:"memoryPercentage"`
	NetworkType      *string  `json:"networkType"`
	NetworkDownlink  *float64 `json:"networkDownlink"`
	NetworkRTT       *float64 `json:"networkRtt"`
	SaveData         *bool    `json:"saveData"`
	ResourceCount    int      `json:"resourceCount"`
	TransferSize     float64  `json:"transferSize"`
	LongTasks        int      `json:"longTasks"`

	// CPU
	CPUCores    *int     `json:"cpuCores"`
	CPUUsage    *float64 `json:"cpuUsage"`
	CPUScore    *float64 `json:"cpuScore"`
	CPUBaseline *float64 `json:"cpuBaseline"`

	// GPU
	GPUVendor   *string  `json:"gpuVendor"`
	GPURenderer *string  `json:"gpuRenderer"`
	GPUUsage    *float64 `json:"gpuUsage"`
	GPUScore    *float64 `json:"gpuScore"`
	GPUTier     GPUTier  `json:"gpuTier"`

	// Hardware
	DeviceMemory *float64     `json:"deviceMemory"`
	ThermalState ThermalState `json:"thermalState"`
}

// NewSnapshot returns an all-unmeasured snapshot.
func NewSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FPSHistory:   []int{},
		GPUTier:      GPUTierUnknown,
		ThermalState: ThermalUnknown,
	}
}

// Clone returns a deep copy safe to hand to readers.
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	out := s
	out.FPSHistory = append(make([]int, 0, len(s.FPSHistory)), s.FPSHistory...)
	out.FPS = cloneInt(s.FPS)
	out.AverageFPS = cloneInt(s.AverageFPS)
	out.MinFPS = cloneInt(s.MinFPS)
	out.MaxFPS = cloneInt(s.MaxFPS)
	out.CPUCores = cloneInt(s.CPUCores)
	for _, p := range []**float64{
		&out.LCP, &out.INP, &out.CLS, &out.FCP, &out.TTFB,
		&out.MemoryUsed, &out.MemoryLimit, &out.MemoryPercentage,
		&out.NetworkDownlink, &out.NetworkRTT,
		&out.CPUUsage, &out.CPUScore, &out.CPUBaseline,
		&out.GPUUsage, &out.GPUScore, &out.DeviceMemory,
	} {
		*p = cloneFloat(*p)
	}
	out.NetworkType = cloneString(s.NetworkType)
	out.GPUVendor = cloneString(s.GPUVendor)
	out.GPURenderer = cloneString(s.GPURenderer)
	if s.SaveData != nil {
		v := *s.SaveData
		out.SaveData = &v
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Str returns a pointer to v, or nil when v is empty.
func Str(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
