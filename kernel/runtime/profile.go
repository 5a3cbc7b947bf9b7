package runtime

import (
	"strings"

	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

// Thresholds for the derived device predicates.
const (
	HighPerformanceCores    = 8
	HighPerformanceMemoryGB = 8.0
)

var mobileMarkers = []string{"mobi", "android", "iphone", "ipad", "ipod", "windows phone"}

// IsHighPerformance reports cores >= 8, a high GPU tier, or at least 8 GB
// of device memory.
func IsHighPerformance(h HardwareInfo) bool {
	if h.CPU.Cores != nil && *h.CPU.Cores >= HighPerformanceCores {
		return true
	}
	if h.GPU.Tier == telemetry.GPUTierHigh {
		return true
	}
	return h.Memory.DeviceMemoryGB != nil && *h.Memory.DeviceMemoryGB >= HighPerformanceMemoryGB
}

// IsMobile reports a mobile platform string or a touch-capable display.
func IsMobile(h HardwareInfo) bool {
	if h.Display.TouchPoints > 0 {
		return true
	}
	s := strings.ToLower(h.Platform.UserAgent + " " + h.Platform.Platform)
	for _, m := range mobileMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// InferArchitecture guesses the CPU architecture from platform strings.
func InferArchitecture(platform, userAgent string) string {
	s := strings.ToLower(platform + " " + userAgent)
	switch {
	case strings.Contains(s, "arm64"), strings.Contains(s, "aarch64"):
		return "arm64"
	case strings.Contains(s, "arm"), strings.Contains(s, "iphone"), strings.Contains(s, "ipad"):
		return "arm"
	case strings.Contains(s, "x86_64"), strings.Contains(s, "x64"),
		strings.Contains(s, "win64"), strings.Contains(s, "wow64"), strings.Contains(s, "amd64"):
		return "x86_64"
	case strings.Contains(s, "i686"), strings.Contains(s, "i386"), strings.Contains(s, "win32"):
		return "x86"
	}
	return "unknown"
}

// InferVendor guesses the CPU vendor from platform strings.
func InferVendor(platform, userAgent string) string {
	s := strings.ToLower(platform + " " + userAgent)
	switch {
	case strings.Contains(s, "mac"), strings.Contains(s, "iphone"), strings.Contains(s, "ipad"):
		return "Apple"
	case strings.Contains(s, "android"):
		return "ARM"
	case strings.Contains(s, "intel"):
		return "Intel"
	}
	return "unknown"
}
