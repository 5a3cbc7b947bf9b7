//go:build js && wasm
// +build js,wasm

package main

import (
	"runtime/debug"
	"syscall/js"
)

// Global singleton
var kernelInstance *Kernel

func main() {
	// 1. Create Kernel Instance
	kernelInstance = NewKernel(loadConfig())

	// 2. Export the perfscope API
	api := js.Global().Get("Object").New()
	api.Set("getMetrics", js.FuncOf(jsGetMetrics))
	api.Set("getQualityConfig", js.FuncOf(jsGetQualityConfig))
	api.Set("getQualityTier", js.FuncOf(jsGetQualityTier))
	api.Set("canAnimate", js.FuncOf(jsCanAnimate))
	api.Set("getHardwareInfo", js.FuncOf(jsGetHardwareInfo))
	api.Set("refreshHardware", js.FuncOf(jsRefreshHardware))
	api.Set("getReport", js.FuncOf(jsGetReport))
	api.Set("setOptions", js.FuncOf(jsSetOptions))
	api.Set("getStats", js.FuncOf(jsGetKernelStats))
	api.Set("collectInstruments", js.FuncOf(jsCollectInstruments))
	api.Set("prometheusText", js.FuncOf(jsPrometheusText))
	api.Set("shutdown", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if kernelInstance != nil {
			kernelInstance.Shutdown()
		}
		return nil
	}))
	js.Global().Set("perfscope", api)

	// Register Shutdown Hook (Main thread only)
	window := js.Global().Get("window")
	if !window.IsUndefined() && !window.IsNull() {
		window.Call("addEventListener", "beforeunload", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			kernelInstance.Shutdown()
			return nil
		}))
	}

	go func() {
		kernelInstance.Boot()
		// Reclaim memory after subsystems are initialized
		debug.FreeOSMemory()
	}()

	// Block Main Thread
	select {}
}
