package telemetry

import (
	"math"
	"strings"
)

// Category names the disjoint groups of snapshot fields. Updates to
// different categories are independent and never transactional.
type Category int

const (
	CategoryFrame Category = iota
	CategoryVitals
	CategoryLongTasks
	CategoryMemory
	CategoryNetwork
	CategoryResources
	CategoryCPU
	CategoryGPU
	CategoryHardware
)

var categoryNames = map[Category]string{
	CategoryFrame:     "frame",
	CategoryVitals:    "vitals",
	CategoryLongTasks: "long_tasks",
	CategoryMemory:    "memory",
	CategoryNetwork:   "network",
	CategoryResources: "resources",
	CategoryCPU:       "cpu",
	CategoryGPU:       "gpu",
	CategoryHardware:  "hardware",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// Update is a partial, single-category change to the snapshot. The
// Aggregator is the only thing that applies them.
type Update interface {
	Category() Category
	apply(st *reducerState)
}

// Emitter accepts updates. *Aggregator implements it.
type Emitter interface {
	Apply(u Update)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Update)

func (f EmitterFunc) Apply(u Update) { f(u) }

type reducerState struct {
	snap  MetricsSnapshot
	stats []int
	cfg   Config
}

// finite drops NaN/Inf so no invalid number ever lands in a snapshot.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func finitePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return finite(*p)
}

// FrameSample is one per-second FPS measurement.
type FrameSample struct {
	FPS int
}

func (FrameSample) Category() Category { return CategoryFrame }

func (u FrameSample) apply(st *reducerState) {
	s := &st.snap
	s.FPS = Int(u.FPS)

	s.FPSHistory = append(s.FPSHistory, u.FPS)
	if over := len(s.FPSHistory) - st.cfg.HistorySize; over > 0 {
		s.FPSHistory = append([]int(nil), s.FPSHistory[over:]...)
	}

	st.stats = append(st.stats, u.FPS)
	if over := len(st.stats) - st.cfg.StatsWindow; over > 0 {
		st.stats = append([]int(nil), st.stats[over:]...)
	}

	sum, lo, hi := 0, st.stats[0], st.stats[0]
	for _, v := range st.stats {
		sum += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	s.AverageFPS = Int(int(math.Round(float64(sum) / float64(len(st.stats)))))
	s.MinFPS = Int(lo)
	s.MaxFPS = Int(hi)
	s.IsLagging = u.FPS < st.cfg.Browser.LagThreshold()
}

// VitalReport is one Web Vitals event. Name matching is case-insensitive;
// unknown names are ignored.
type VitalReport struct {
	Name  string
	Value float64
}

func (VitalReport) Category() Category { return CategoryVitals }

func (u VitalReport) apply(st *reducerState) {
	s := &st.snap
	v := finite(u.Value)
	switch strings.ToLower(u.Name) {
	case "lcp":
		s.LCP = v
	case "inp":
		s.INP = v
	case "cls":
		s.CLS = v
	case "fcp":
		s.FCP = v
	case "ttfb":
		s.TTFB = v
	}
}

// LongTaskBatch adds the entries of one observer batch to the running count.
type LongTaskBatch struct {
	Entries int
}

func (LongTaskBatch) Category() Category { return CategoryLongTasks }

func (u LongTaskBatch) apply(st *reducerState) {
	if u.Entries > 0 {
		st.snap.LongTasks += u.Entries
	}
}

// MemorySample is a heap usage reading.
type MemorySample struct {
	UsedBytes  float64
	LimitBytes float64
}

func (MemorySample) Category() Category { return CategoryMemory }

func (u MemorySample) apply(st *reducerState) {
	s := &st.snap
	s.MemoryUsed = finite(u.UsedBytes)
	s.MemoryLimit = finite(u.LimitBytes)
	s.MemoryPercentage = nil
	if u.LimitBytes > 0 {
		s.MemoryPercentage = finite(math.Round(u.UsedBytes / u.LimitBytes * 100))
	}
}

// NetworkSample is a connection reading.
type NetworkSample struct {
	EffectiveType string
	DownlinkMbps  float64
	RTTMs         float64
	SaveData      bool
}

func (NetworkSample) Category() Category { return CategoryNetwork }

func (u NetworkSample) apply(st *reducerState) {
	s := &st.snap
	s.NetworkType = Str(u.EffectiveType)
	s.NetworkDownlink = finite(u.DownlinkMbps)
	s.NetworkRTT = finite(u.RTTMs)
	saveData := u.SaveData
	s.SaveData = &saveData
}

// ResourceSample is a resource timing summary.
type ResourceSample struct {
	Count        int
	TransferSize float64
}

func (ResourceSample) Category() Category { return CategoryResources }

func (u ResourceSample) apply(st *reducerState) {
	st.snap.ResourceCount = u.Count
	if v := finite(u.TransferSize); v != nil {
		st.snap.TransferSize = *v
	}
}

// CPUCores sets the core count, available immediately at start.
type CPUCores struct {
	Cores int
}

func (CPUCores) Category() Category { return CategoryCPU }

func (u CPUCores) apply(st *reducerState) {
	if u.Cores > 0 {
		st.snap.CPUCores = Int(u.Cores)
	}
}

// CPUSample is a cpu-usage message from the benchmark worker.
type CPUSample struct {
	Usage    *float64
	Score    *float64
	Baseline *float64
}

func (CPUSample) Category() Category { return CategoryCPU }

func (u CPUSample) apply(st *reducerState) {
	s := &st.snap
	if v := finitePtr(u.Usage); v != nil {
		s.CPUUsage = Float(clampPercent(*v))
	}
	if v := finitePtr(u.Score); v != nil {
		s.CPUScore = v
	}
	if v := finitePtr(u.Baseline); v != nil {
		s.CPUBaseline = v
	}
	s.ThermalState = deriveThermal(s.CPUUsage, s.GPUUsage)
}

// CPUBaselineSet records the worker's baseline-established message.
type CPUBaselineSet struct {
	Baseline float64
}

func (CPUBaselineSet) Category() Category { return CategoryCPU }

func (u CPUBaselineSet) apply(st *reducerState) {
	if v := finite(u.Baseline); v != nil {
		st.snap.CPUBaseline = v
	}
}

// GPUIdentity records vendor/renderer strings and the derived tier.
type GPUIdentity struct {
	Vendor   *string
	Renderer *string
	Tier     GPUTier
}

func (GPUIdentity) Category() Category { return CategoryGPU }

func (u GPUIdentity) apply(st *reducerState) {
	s := &st.snap
	s.GPUVendor = cloneString(u.Vendor)
	s.GPURenderer = cloneString(u.Renderer)
	s.GPUTier = u.Tier
	if s.GPUTier == "" {
		s.GPUTier = GPUTierUnknown
	}
}

// GPUSample is one monitoring cycle of the GPU estimator.
type GPUSample struct {
	Score float64
	Usage float64
}

func (GPUSample) Category() Category { return CategoryGPU }

func (u GPUSample) apply(st *reducerState) {
	s := &st.snap
	s.GPUScore = finite(u.Score)
	if v := finite(u.Usage); v != nil {
		s.GPUUsage = Float(clampPercent(*v))
	}
	s.ThermalState = deriveThermal(s.CPUUsage, s.GPUUsage)
}

// HardwareSample carries the one-shot hardware facts.
type HardwareSample struct {
	DeviceMemoryGB *float64
}

func (HardwareSample) Category() Category { return CategoryHardware }

func (u HardwareSample) apply(st *reducerState) {
	st.snap.DeviceMemory = finitePtr(u.DeviceMemoryGB)
}

// Clear resets one category to its unmeasured state. Used when a
// monitoring option is switched off. The long-task counter is monotonic
// and is never cleared.
type Clear struct {
	Target Category
}

func (u Clear) Category() Category { return u.Target }

func (u Clear) apply(st *reducerState) {
	s := &st.snap
	switch u.Target {
	case CategoryFrame:
		s.FPS, s.AverageFPS, s.MinFPS, s.MaxFPS = nil, nil, nil, nil
		s.IsLagging = false
		s.FPSHistory = []int{}
		st.stats = nil
	case CategoryVitals:
		s.LCP, s.INP, s.CLS, s.FCP, s.TTFB = nil, nil, nil, nil, nil
	case CategoryMemory:
		s.MemoryUsed, s.MemoryLimit, s.MemoryPercentage = nil, nil, nil
	case CategoryNetwork:
		s.NetworkType, s.NetworkDownlink, s.NetworkRTT, s.SaveData = nil, nil, nil, nil
	case CategoryResources:
		s.ResourceCount, s.TransferSize = 0, 0
	case CategoryCPU:
		s.CPUUsage, s.CPUScore, s.CPUBaseline = nil, nil, nil
		s.ThermalState = deriveThermal(nil, s.GPUUsage)
	case CategoryGPU:
		s.GPUUsage, s.GPUScore = nil, nil
		s.ThermalState = deriveThermal(s.CPUUsage, nil)
	}
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// deriveThermal estimates thermal pressure from the busier of CPU and GPU.
// Neither measured means unknown.
func deriveThermal(cpuUsage, gpuUsage *float64) ThermalState {
	if cpuUsage == nil && gpuUsage == nil {
		return ThermalUnknown
	}
	load := 0.0
	if cpuUsage != nil {
		load = *cpuUsage
	}
	if gpuUsage != nil && *gpuUsage > load {
		load = *gpuUsage
	}
	switch {
	case load >= 90:
		return ThermalCritical
	case load >= 75:
		return ThermalSerious
	case load >= 50:
		return ThermalFair
	default:
		return ThermalNominal
	}
}
