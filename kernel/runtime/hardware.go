// Package runtime detects what the executing device can do: cores, memory,
// GPU class, display, platform strings, browser feature flags, battery and
// network. Detection runs once and is cached by a process-wide Detector.
package runtime

import (
	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

// CPUInfo describes the processor.
type CPUInfo struct {
	Cores        *int   `json:"cores"`
	Architecture string `json:"architecture"` // "unknown" when not inferable
	Vendor       string `json:"vendor"`
	Model        string `json:"model,omitempty"`
}

// MemoryInfo holds the device memory hint and heap limit.
type MemoryInfo struct {
	DeviceMemoryGB *float64 `json:"deviceMemory"`
	HeapLimitBytes *float64 `json:"jsHeapSizeLimit"`
}

// GPUInfo identifies the renderer and its coarse tier.
type GPUInfo struct {
	Vendor   *string           `json:"vendor"`
	Renderer *string           `json:"renderer"`
	Tier     telemetry.GPUTier `json:"tier"`
}

// DisplayInfo describes the screen.
type DisplayInfo struct {
	ColorDepth  *int     `json:"colorDepth"`
	PixelRatio  *float64 `json:"pixelRatio"`
	Width       *int     `json:"width"`
	Height      *int     `json:"height"`
	TouchPoints int      `json:"maxTouchPoints"`
}

// PlatformInfo carries identification strings.
type PlatformInfo struct {
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Language  string `json:"language"`
	Timezone  string `json:"timezone"`
}

// Capabilities are individual feature flags.
type Capabilities struct {
	WebGL          bool `json:"webgl"`
	WebGL2         bool `json:"webgl2"`
	WebGPU         bool `json:"webgpu"`
	WebAssembly    bool `json:"webassembly"`
	Workers        bool `json:"workers"`
	LocalStorage   bool `json:"localStorage"`
	SessionStorage bool `json:"sessionStorage"`
	IndexedDB      bool `json:"indexedDB"`
}

// BatteryInfo is the last known battery state.
type BatteryInfo struct {
	Level    *float64 `json:"level"` // 0..1
	Charging *bool    `json:"charging"`
}

// NetworkInfo is the connection class.
type NetworkInfo struct {
	EffectiveType *string  `json:"effectiveType"`
	DownlinkMbps  *float64 `json:"downlink"`
	RTTMs         *float64 `json:"rtt"`
	SaveData      *bool    `json:"saveData"`
}

// HardwareInfo is one complete detection pass. A new pass replaces the
// whole value; callers get copies.
type HardwareInfo struct {
	CPU          CPUInfo      `json:"cpu"`
	Memory       MemoryInfo   `json:"memory"`
	GPU          GPUInfo      `json:"gpu"`
	Display      DisplayInfo  `json:"display"`
	Platform     PlatformInfo `json:"platform"`
	Capabilities Capabilities `json:"capabilities"`
	Battery      BatteryInfo  `json:"battery"`
	Network      NetworkInfo  `json:"network"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a copy sharing no pointers with h.
func (h HardwareInfo) Clone() HardwareInfo {
	out := h
	out.CPU.Cores = clonePtr(h.CPU.Cores)
	out.Memory.DeviceMemoryGB = clonePtr(h.Memory.DeviceMemoryGB)
	out.Memory.HeapLimitBytes = clonePtr(h.Memory.HeapLimitBytes)
	out.GPU.Vendor = clonePtr(h.GPU.Vendor)
	out.GPU.Renderer = clonePtr(h.GPU.Renderer)
	out.Display.ColorDepth = clonePtr(h.Display.ColorDepth)
	out.Display.PixelRatio = clonePtr(h.Display.PixelRatio)
	out.Display.Width = clonePtr(h.Display.Width)
	out.Display.Height = clonePtr(h.Display.Height)
	out.Battery.Level = clonePtr(h.Battery.Level)
	out.Battery.Charging = clonePtr(h.Battery.Charging)
	out.Network.EffectiveType = clonePtr(h.Network.EffectiveType)
	out.Network.DownlinkMbps = clonePtr(h.Network.DownlinkMbps)
	out.Network.RTTMs = clonePtr(h.Network.RTTMs)
	out.Network.SaveData = clonePtr(h.Network.SaveData)
	return out
}

// unknownHardware is what a pass reports before any probe succeeds.
func unknownHardware() HardwareInfo {
	return HardwareInfo{
		CPU: CPUInfo{Architecture: "unknown", Vendor: "unknown"},
		GPU: GPUInfo{Tier: telemetry.GPUTierUnknown},
	}
}
