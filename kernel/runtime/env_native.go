//go:build !js || !wasm
// +build !js !wasm

package runtime

import (
	"os"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nmxmxh/perfscope/kernel/platform"
)

const bytesPerGB = 1 << 30

// nativeEnvironment reads the operating system through gopsutil. Browser
// sections (GPU, display, battery, network, feature flags) are unsupported.
type nativeEnvironment struct{}

// DefaultEnvironment returns the OS-backed environment.
func DefaultEnvironment() Environment {
	return nativeEnvironment{}
}

func (nativeEnvironment) CPU() (CPUInfo, error) {
	info := CPUInfo{Architecture: normalizeArch(goruntime.GOARCH)}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.Cores = &n
	} else {
		n := goruntime.NumCPU()
		info.Cores = &n
	}
	if stats, err := cpu.Info(); err == nil && len(stats) > 0 {
		info.Vendor = stats[0].VendorID
		info.Model = strings.TrimSpace(stats[0].ModelName)
	}
	return info, nil
}

func (nativeEnvironment) Memory() (MemoryInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemoryInfo{}, err
	}
	gb := float64(vm.Total) / bytesPerGB
	return MemoryInfo{DeviceMemoryGB: &gb}, nil
}

func (nativeEnvironment) GPU() (GPUIdentity, error) {
	return GPUIdentity{}, platform.ErrUnsupported
}

func (nativeEnvironment) Display() (DisplayInfo, error) {
	return DisplayInfo{}, platform.ErrUnsupported
}

func (nativeEnvironment) Platform() (PlatformInfo, error) {
	info := PlatformInfo{
		Platform: goruntime.GOOS,
		Language: firstEnv("LC_ALL", "LANG", "LANGUAGE"),
		Timezone: time.Local.String(),
	}
	if h, err := host.Info(); err == nil {
		info.Platform = strings.TrimSpace(h.Platform + " " + h.PlatformVersion)
		if info.Platform == "" {
			info.Platform = h.OS
		}
	}
	return info, nil
}

func (nativeEnvironment) Battery() (BatteryInfo, error) {
	return BatteryInfo{}, platform.ErrUnsupported
}

func (nativeEnvironment) Network() (NetworkInfo, error) {
	return NetworkInfo{}, platform.ErrUnsupported
}

func (nativeEnvironment) CapabilityProbes() []FlagProbe {
	return []FlagProbe{
		{Name: "workers", Check: func() bool { return true }}, // goroutine worker
	}
}

func normalizeArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
