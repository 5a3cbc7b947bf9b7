//go:build js && wasm
// +build js,wasm

package runtime

import (
	"sync"
	"syscall/js"

	"github.com/nmxmxh/perfscope/kernel/gpu"
	"github.com/nmxmxh/perfscope/kernel/platform"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

// browserEnvironment reads navigator, screen and window.
type browserEnvironment struct {
	global    js.Value
	navigator js.Value

	batteryMu sync.Mutex
	battery   *BatteryInfo
	onBattery js.Func
}

// DefaultEnvironment binds the current page. The battery API is
// promise-based, so its state is requested here and reported once resolved.
func DefaultEnvironment() Environment {
	g := js.Global()
	env := &browserEnvironment{global: g, navigator: g.Get("navigator")}
	env.watchBattery()
	return env
}

func isNil(v js.Value) bool {
	return v.IsUndefined() || v.IsNull()
}

func numberPtr(v js.Value) *float64 {
	if v.Type() != js.TypeNumber {
		return nil
	}
	f := v.Float()
	return &f
}

func intPtr(v js.Value) *int {
	if v.Type() != js.TypeNumber {
		return nil
	}
	n := v.Int()
	return &n
}

func stringOf(v js.Value) string {
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

func (e *browserEnvironment) CPU() (CPUInfo, error) {
	if isNil(e.navigator) {
		return CPUInfo{}, platform.ErrUnsupported
	}
	plat := stringOf(e.navigator.Get("platform"))
	ua := stringOf(e.navigator.Get("userAgent"))
	return CPUInfo{
		Cores:        intPtr(e.navigator.Get("hardwareConcurrency")),
		Architecture: InferArchitecture(plat, ua),
		Vendor:       InferVendor(plat, ua),
	}, nil
}

func (e *browserEnvironment) Memory() (MemoryInfo, error) {
	var info MemoryInfo
	if !isNil(e.navigator) {
		info.DeviceMemoryGB = numberPtr(e.navigator.Get("deviceMemory"))
	}
	if perf := e.global.Get("performance"); !isNil(perf) {
		if m := perf.Get("memory"); !isNil(m) {
			info.HeapLimitBytes = numberPtr(m.Get("jsHeapSizeLimit"))
		}
	}
	return info, nil
}

// GPU opens a throwaway context to read the renderer strings.
func (e *browserEnvironment) GPU() (GPUIdentity, error) {
	surface, err := gpu.DefaultSurface()
	if err != nil {
		return GPUIdentity{}, err
	}
	defer surface.Remove()
	ctx, err := surface.Context()
	if err != nil {
		return GPUIdentity{}, err
	}
	defer ctx.Lose()

	var id GPUIdentity
	if ctx.HasExtension(gpu.DebugRendererInfo) {
		id.Vendor, _ = ctx.ParameterString(gpu.ParamUnmaskedVendor)
		id.Renderer, _ = ctx.ParameterString(gpu.ParamUnmaskedRenderer)
	}
	if id.Vendor == "" {
		id.Vendor, _ = ctx.ParameterString(gpu.ParamVendor)
	}
	if id.Renderer == "" {
		id.Renderer, _ = ctx.ParameterString(gpu.ParamRenderer)
	}
	return id, nil
}

func (e *browserEnvironment) Display() (DisplayInfo, error) {
	screen := e.global.Get("screen")
	if isNil(screen) {
		return DisplayInfo{}, platform.ErrUnsupported
	}
	info := DisplayInfo{
		ColorDepth: intPtr(screen.Get("colorDepth")),
		PixelRatio: numberPtr(e.global.Get("devicePixelRatio")),
		Width:      intPtr(screen.Get("width")),
		Height:     intPtr(screen.Get("height")),
	}
	if !isNil(e.navigator) {
		if n := e.navigator.Get("maxTouchPoints"); n.Type() == js.TypeNumber {
			info.TouchPoints = n.Int()
		}
	}
	return info, nil
}

func (e *browserEnvironment) Platform() (PlatformInfo, error) {
	if isNil(e.navigator) {
		return PlatformInfo{}, platform.ErrUnsupported
	}
	info := PlatformInfo{
		UserAgent: stringOf(e.navigator.Get("userAgent")),
		Platform:  stringOf(e.navigator.Get("platform")),
		Language:  stringOf(e.navigator.Get("language")),
	}
	if intl := e.global.Get("Intl"); !isNil(intl) {
		opts := intl.Get("DateTimeFormat").New().Call("resolvedOptions")
		info.Timezone = stringOf(opts.Get("timeZone"))
	}
	return info, nil
}

func (e *browserEnvironment) watchBattery() {
	if isNil(e.navigator) || e.navigator.Get("getBattery").Type() != js.TypeFunction {
		return
	}
	defer utils.RecoverWarn(nil, "navigator.getBattery")
	e.onBattery = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 || isNil(args[0]) {
			return nil
		}
		b := args[0]
		info := BatteryInfo{Level: numberPtr(b.Get("level"))}
		if c := b.Get("charging"); c.Type() == js.TypeBoolean {
			charging := c.Bool()
			info.Charging = &charging
		}
		e.batteryMu.Lock()
		e.battery = &info
		e.batteryMu.Unlock()
		return nil
	})
	e.navigator.Call("getBattery").Call("then", e.onBattery)
}

func (e *browserEnvironment) Battery() (BatteryInfo, error) {
	e.batteryMu.Lock()
	defer e.batteryMu.Unlock()
	if e.battery == nil {
		return BatteryInfo{}, platform.ErrUnsupported
	}
	return *e.battery, nil
}

func (e *browserEnvironment) Network() (NetworkInfo, error) {
	if isNil(e.navigator) {
		return NetworkInfo{}, platform.ErrUnsupported
	}
	host := platform.Default()
	if host.Network == nil {
		return NetworkInfo{}, platform.ErrUnsupported
	}
	stats, err := host.Network.Network()
	if err != nil {
		return NetworkInfo{}, err
	}
	saveData := stats.SaveData
	info := NetworkInfo{SaveData: &saveData}
	if stats.EffectiveType != "" {
		info.EffectiveType = &stats.EffectiveType
	}
	if stats.DownlinkMbps > 0 {
		info.DownlinkMbps = &stats.DownlinkMbps
	}
	if stats.RTTMs > 0 {
		info.RTTMs = &stats.RTTMs
	}
	return info, nil
}

func (e *browserEnvironment) CapabilityProbes() []FlagProbe {
	g := e.global
	hasContext := func(names ...string) func() bool {
		return func() bool {
			_, _, err := platform.FirstOf(contextProbes(g, names)...)
			return err == nil
		}
	}
	storage := func(name string) func() bool {
		return func() bool {
			s := g.Get(name)
			if isNil(s) {
				return false
			}
			const key = "__perfscope_probe__"
			s.Call("setItem", key, key)
			s.Call("removeItem", key)
			return true
		}
	}
	return []FlagProbe{
		{Name: "webgl", Check: hasContext("webgl", "experimental-webgl")},
		{Name: "webgl2", Check: hasContext("webgl2")},
		{Name: "webgpu", Check: func() bool { return !isNil(e.navigator) && e.navigator.Get("gpu").Truthy() }},
		{Name: "webassembly", Check: func() bool { return g.Get("WebAssembly").Type() == js.TypeObject }},
		{Name: "workers", Check: func() bool { return g.Get("Worker").Type() == js.TypeFunction }},
		{Name: "localStorage", Check: storage("localStorage")},
		{Name: "sessionStorage", Check: storage("sessionStorage")},
		{Name: "indexedDB", Check: func() bool { return !isNil(g.Get("indexedDB")) }},
	}
}

// contextProbes try each context name on a detached canvas.
func contextProbes(g js.Value, names []string) []platform.Probe[js.Value] {
	probes := make([]platform.Probe[js.Value], 0, len(names))
	for _, name := range names {
		name := name
		probes = append(probes, platform.Probe[js.Value]{
			Name: "canvas.getContext(" + name + ")",
			Run: func() (js.Value, error) {
				doc := g.Get("document")
				if isNil(doc) {
					return js.Null(), platform.ErrUnsupported
				}
				ctx := doc.Call("createElement", "canvas").Call("getContext", name)
				if isNil(ctx) {
					return js.Null(), platform.ErrUnsupported
				}
				if lose := ctx.Call("getExtension", "WEBGL_lose_context"); !isNil(lose) {
					lose.Call("loseContext")
				}
				return ctx, nil
			},
		})
	}
	return probes
}
