// Package runtimetest provides a scripted hardware Environment.
package runtimetest

import (
	"sync"

	"github.com/nmxmxh/perfscope/kernel/platform"
	"github.com/nmxmxh/perfscope/kernel/runtime"
)

// Env returns fixed sections. A nil section pointer reports unsupported;
// a name in Panics makes that section panic.
type Env struct {
	mu    sync.Mutex
	calls map[string]int

	CPUInfo      *runtime.CPUInfo
	MemoryInfo   *runtime.MemoryInfo
	GPUID        *runtime.GPUIdentity
	DisplayInfo  *runtime.DisplayInfo
	PlatformInfo *runtime.PlatformInfo
	BatteryInfo  *runtime.BatteryInfo
	NetworkInfo  *runtime.NetworkInfo
	Flags        map[string]bool
	Panics       map[string]bool
}

// Desktop returns an 8-core desktop with a high-tier GPU.
func Desktop() *Env {
	cores := 8
	mem := 16.0
	return &Env{
		CPUInfo:      &runtime.CPUInfo{Cores: &cores, Architecture: "x86_64", Vendor: "Intel"},
		MemoryInfo:   &runtime.MemoryInfo{DeviceMemoryGB: &mem},
		GPUID:        &runtime.GPUIdentity{Vendor: "NVIDIA Corporation", Renderer: "NVIDIA GeForce RTX 3070"},
		DisplayInfo:  &runtime.DisplayInfo{},
		PlatformInfo: &runtime.PlatformInfo{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36", Platform: "Win32", Language: "en-US", Timezone: "Europe/London"},
		Flags:        map[string]bool{"webgl": true, "webgl2": true, "webassembly": true, "workers": true},
	}
}

// Phone returns a 4-core touch device with a low-tier GPU.
func Phone() *Env {
	cores := 4
	mem := 2.0
	return &Env{
		CPUInfo:      &runtime.CPUInfo{Cores: &cores, Architecture: "arm64", Vendor: "ARM"},
		MemoryInfo:   &runtime.MemoryInfo{DeviceMemoryGB: &mem},
		GPUID:        &runtime.GPUIdentity{Vendor: "ARM", Renderer: "Mali-G52"},
		DisplayInfo:  &runtime.DisplayInfo{TouchPoints: 5},
		PlatformInfo: &runtime.PlatformInfo{UserAgent: "Mozilla/5.0 (Linux; Android 13; Pixel 6a) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Mobile Safari/537.36", Platform: "Linux armv8l"},
		Flags:        map[string]bool{"webgl": true, "workers": true},
	}
}

func (e *Env) hit(name string) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = map[string]int{}
	}
	e.calls[name]++
	panics := e.Panics[name]
	e.mu.Unlock()
	if panics {
		panic(name + " probe exploded")
	}
}

// Calls returns how often section name was probed.
func (e *Env) Calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

func section[T any](e *Env, name string, v *T) (T, error) {
	e.hit(name)
	if v == nil {
		var zero T
		return zero, platform.ErrUnsupported
	}
	return *v, nil
}

func (e *Env) CPU() (runtime.CPUInfo, error)         { return section(e, "cpu", e.CPUInfo) }
func (e *Env) Memory() (runtime.MemoryInfo, error)   { return section(e, "memory", e.MemoryInfo) }
func (e *Env) GPU() (runtime.GPUIdentity, error)     { return section(e, "gpu", e.GPUID) }
func (e *Env) Display() (runtime.DisplayInfo, error) { return section(e, "display", e.DisplayInfo) }
func (e *Env) Platform() (runtime.PlatformInfo, error) {
	return section(e, "platform", e.PlatformInfo)
}
func (e *Env) Battery() (runtime.BatteryInfo, error) { return section(e, "battery", e.BatteryInfo) }
func (e *Env) Network() (runtime.NetworkInfo, error) { return section(e, "network", e.NetworkInfo) }

func (e *Env) CapabilityProbes() []runtime.FlagProbe {
	var probes []runtime.FlagProbe
	for _, name := range []string{"webgl", "webgl2", "webgpu", "webassembly", "workers", "localStorage", "sessionStorage", "indexedDB"} {
		name := name
		probes = append(probes, runtime.FlagProbe{Name: name, Check: func() bool {
			e.hit("flag:" + name)
			return e.Flags[name]
		}})
	}
	return probes
}
