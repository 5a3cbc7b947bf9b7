//go:build js && wasm
// +build js,wasm

package main

import (
	"syscall/js"
	"time"

	"github.com/nmxmxh/perfscope/kernel/monitor"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

// loadConfig reads window.__PERFSCOPE_CONFIG__ over the defaults. Keys of
// the wrong type are ignored.
func loadConfig() KernelConfig {
	config := KernelConfig{
		Options:  monitor.DefaultOptions(),
		LogLevel: utils.INFO,
	}

	raw := js.Global().Get("__PERFSCOPE_CONFIG__")
	if raw.IsUndefined() || raw.IsNull() || raw.Type() != js.TypeObject {
		return config
	}

	config.Options = readOptions(raw, config.Options)
	if v := raw.Get("metrics"); v.Type() == js.TypeBoolean {
		config.Metrics = v.Bool()
	}
	if v := raw.Get("logLevel"); v.Type() == js.TypeString {
		config.LogLevel = utils.ParseLevel(v.String())
		config.Options.LogLevel = v.String()
	}

	if err := config.Options.Validate(); err != nil {
		utils.DefaultLogger("perfscope").Warn("Invalid config, using defaults", utils.Err(err))
		config.Options = monitor.DefaultOptions()
	}
	return config
}

// readOptions overlays the recognised keys of raw onto base. It serves
// both the boot config and perfscope.setOptions.
func readOptions(raw js.Value, base monitor.Options) monitor.Options {
	opts := base
	for key, dst := range map[string]*bool{
		"enableFPS":       &opts.FPS,
		"enableWebVitals": &opts.WebVitals,
		"enableLongTasks": &opts.LongTasks,
		"enableMemory":    &opts.Memory,
		"enableNetwork":   &opts.Network,
		"enableResources": &opts.Resources,
		"enableCPU":       &opts.CPU,
		"enableGPU":       &opts.GPU,
	} {
		if v := raw.Get(key); v.Type() == js.TypeBoolean {
			*dst = v.Bool()
		}
	}
	if v := raw.Get("historySize"); v.Type() == js.TypeNumber {
		opts.HistorySize = v.Int()
	}
	if v := raw.Get("statsWindow"); v.Type() == js.TypeNumber {
		opts.StatsWindow = v.Int()
	}
	if v := raw.Get("gpuIntervalMs"); v.Type() == js.TypeNumber {
		opts.GPUInterval = time.Duration(v.Int()) * time.Millisecond
	}
	if v := raw.Get("browser"); v.Type() == js.TypeString {
		opts.Browser = v.String()
	}
	return opts
}
