//go:build js && wasm

package platform

import (
	"strings"
	"sync"
	"syscall/js"

	"github.com/nmxmxh/perfscope/kernel/utils"
)

func isNil(v js.Value) bool {
	return v.IsUndefined() || v.IsNull()
}

// rafFrames binds requestAnimationFrame.
type rafFrames struct {
	mu          sync.Mutex
	window      js.Value
	performance js.Value
	pending     map[FrameHandle]js.Func
}

func (r *rafFrames) RequestFrame(cb func(timestampMs float64)) (h FrameHandle, err error) {
	defer utils.RecoverError("requestAnimationFrame", &err)

	r.mu.Lock()
	defer r.mu.Unlock()

	var fn js.Func
	var id FrameHandle
	fn = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		fn.Release()

		ts := 0.0
		if len(args) > 0 && args[0].Type() == js.TypeNumber {
			ts = args[0].Float()
		}
		cb(ts)
		return nil
	})
	id = FrameHandle(r.window.Call("requestAnimationFrame", fn).Int())
	r.pending[id] = fn
	return id, nil
}

func (r *rafFrames) CancelFrame(h FrameHandle) {
	defer utils.RecoverWarn(nil, "cancelAnimationFrame")

	r.mu.Lock()
	fn, ok := r.pending[h]
	delete(r.pending, h)
	r.mu.Unlock()
	if !ok {
		return
	}
	r.window.Call("cancelAnimationFrame", int(h))
	fn.Release()
}

func (r *rafFrames) Now() float64 {
	return r.performance.Call("now").Float()
}

// perfObservers binds PerformanceObserver.
type perfObservers struct {
	ctor js.Value
}

func (p perfObservers) Observe(entryType string, onBatch func(entries int)) (disconnect func(), err error) {
	defer utils.RecoverError("PerformanceObserver", &err)

	supported := p.ctor.Get("supportedEntryTypes")
	if isNil(supported) || !supported.Call("includes", entryType).Bool() {
		return nil, ErrUnsupported
	}

	cb := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			return nil
		}
		onBatch(args[0].Call("getEntries").Length())
		return nil
	})
	observer := p.ctor.New(cb)
	opts := js.Global().Get("Object").New()
	opts.Set("type", entryType)
	opts.Set("buffered", true)
	observer.Call("observe", opts)

	return func() {
		defer utils.RecoverWarn(nil, "PerformanceObserver.disconnect")
		observer.Call("disconnect")
		cb.Release()
	}, nil
}

// webVitals binds the web-vitals library exposed on window.webVitals
// (onLCP, onINP, onCLS, onFCP, onTTFB).
type webVitals struct {
	lib js.Value
}

func (w webVitals) Subscribe(metric string, fn func(VitalEvent)) (unsubscribe func(), err error) {
	defer utils.RecoverError("webVitals.on"+metric, &err)

	register := w.lib.Get("on" + strings.ToUpper(metric))
	if register.Type() != js.TypeFunction {
		return nil, ErrUnsupported
	}

	var mu sync.Mutex
	active := true
	cb := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		mu.Lock()
		live := active
		mu.Unlock()
		if !live || len(args) == 0 {
			return nil
		}
		m := args[0]
		fn(VitalEvent{Name: m.Get("name").String(), Value: m.Get("value").Float()})
		return nil
	})

	// web-vitals may return an unsubscribe function; older builds return nothing.
	ret := register.Invoke(cb, map[string]interface{}{"reportAllChanges": true})

	return func() {
		mu.Lock()
		active = false
		mu.Unlock()
		if ret.Type() == js.TypeFunction {
			func() {
				defer utils.RecoverWarn(nil, "webVitals.unsubscribe")
				ret.Invoke()
			}()
		}
		// The library keeps a reference to cb; releasing it would make a
		// late report call a released func, so it is only muted.
	}, nil
}

// heapMemory binds the non-standard performance.memory.
type heapMemory struct {
	performance js.Value
}

func (h heapMemory) Memory() (stats MemoryStats, err error) {
	defer utils.RecoverError("performance.memory", &err)
	m := h.performance.Get("memory")
	if isNil(m) {
		return MemoryStats{}, ErrUnsupported
	}
	return MemoryStats{
		UsedBytes:  m.Get("usedJSHeapSize").Float(),
		LimitBytes: m.Get("jsHeapSizeLimit").Float(),
	}, nil
}

// connection binds navigator.connection and its vendor-prefixed variants.
type connection struct {
	navigator js.Value
}

func (c connection) Network() (NetworkStats, error) {
	conn, _, err := FirstOf(
		c.probe("connection"),
		c.probe("mozConnection"),
		c.probe("webkitConnection"),
	)
	if err != nil {
		return NetworkStats{}, err
	}
	var stats NetworkStats
	if v := conn.Get("effectiveType"); v.Type() == js.TypeString {
		stats.EffectiveType = v.String()
	}
	if v := conn.Get("downlink"); v.Type() == js.TypeNumber {
		stats.DownlinkMbps = v.Float()
	}
	if v := conn.Get("rtt"); v.Type() == js.TypeNumber {
		stats.RTTMs = v.Float()
	}
	if v := conn.Get("saveData"); v.Type() == js.TypeBoolean {
		stats.SaveData = v.Bool()
	}
	return stats, nil
}

func (c connection) probe(name string) Probe[js.Value] {
	return Probe[js.Value]{Name: "navigator." + name, Run: func() (js.Value, error) {
		conn := c.navigator.Get(name)
		if isNil(conn) {
			return js.Null(), ErrUnsupported
		}
		return conn, nil
	}}
}

// resourceTiming binds performance.getEntriesByType("resource").
type resourceTiming struct {
	performance js.Value
}

func (r resourceTiming) Resources() (stats ResourceStats, err error) {
	defer utils.RecoverError("performance.getEntriesByType", &err)
	entries := r.performance.Call("getEntriesByType", "resource")
	n := entries.Length()
	stats.Count = n
	for i := 0; i < n; i++ {
		if v := entries.Index(i).Get("transferSize"); v.Type() == js.TypeNumber {
			stats.TransferSize += v.Float()
		}
	}
	return stats, nil
}

// Default binds whatever the current page exposes. Missing APIs stay nil.
func Default() Host {
	global := js.Global()
	host := Host{}

	performance := global.Get("performance")
	if window := global.Get("window"); !isNil(window) && !isNil(performance) &&
		window.Get("requestAnimationFrame").Type() == js.TypeFunction {
		host.Frames = &rafFrames{window: window, performance: performance, pending: make(map[FrameHandle]js.Func)}
	}
	if ctor := global.Get("PerformanceObserver"); ctor.Type() == js.TypeFunction {
		host.Observers = perfObservers{ctor: ctor}
	}
	if lib := global.Get("webVitals"); !isNil(lib) {
		host.Vitals = webVitals{lib: lib}
	}
	if !isNil(performance) {
		host.Memory = heapMemory{performance: performance}
		host.Resources = resourceTiming{performance: performance}
	}
	if navigator := global.Get("navigator"); !isNil(navigator) {
		host.Network = connection{navigator: navigator}
		if ua := navigator.Get("userAgent"); ua.Type() == js.TypeString {
			host.UserAgent = ua.String()
		}
	}
	return host
}
