//go:build js && wasm
// +build js,wasm

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"syscall/js"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/nmxmxh/perfscope/kernel/quality"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

const (
	eventKernel  = "perfscope:kernel"
	eventQuality = "perfscope:quality"
	eventMetrics = "perfscope:metrics"
)

// toJS converts a Go value through its JSON form, so struct tags and nil
// pointers (null) carry over to the page.
func toJS(v interface{}) js.Value {
	data, err := json.Marshal(v)
	if err != nil {
		return js.ValueOf(map[string]interface{}{"error": err.Error()})
	}
	return js.Global().Get("JSON").Call("parse", string(data))
}

// dispatch fires a CustomEvent on window. Workers have no window and skip it.
func (k *Kernel) dispatch(event string, detail interface{}) {
	defer utils.RecoverWarn(k.logger, "dispatch:"+event)
	target := js.Global().Get("window")
	if target.IsUndefined() || target.IsNull() {
		return
	}
	target.Call("dispatchEvent",
		js.Global().Get("CustomEvent").New(event, map[string]interface{}{
			"detail": toJS(detail),
		}),
	)
}

// notifyHost sends lifecycle events to the JS environment
func (k *Kernel) notifyHost(event string, data map[string]interface{}) {
	k.dispatch(eventKernel, map[string]interface{}{
		"event":     event,
		"timestamp": time.Now().UnixNano(),
		"data":      data,
	})
}

// --- JS Exports ---

func errorValue(msg string) js.Value {
	return js.ValueOf(map[string]interface{}{"error": msg})
}

func running() bool {
	return kernelInstance != nil && kernelInstance.Monitor() != nil
}

func jsGetMetrics(this js.Value, args []js.Value) interface{} {
	if !running() {
		return js.Null()
	}
	return toJS(kernelInstance.Monitor().Snapshot())
}

func jsGetQualityConfig(this js.Value, args []js.Value) interface{} {
	if !running() {
		return toJS(quality.ConfigFor(quality.TierMinimal))
	}
	return toJS(kernelInstance.Monitor().Quality().Config())
}

func jsGetQualityTier(this js.Value, args []js.Value) interface{} {
	if !running() {
		return js.ValueOf(string(quality.TierMinimal))
	}
	return js.ValueOf(string(kernelInstance.Monitor().Quality().Tier()))
}

func jsCanAnimate(this js.Value, args []js.Value) interface{} {
	p := quality.PriorityMedium
	if len(args) > 0 && args[0].Type() == js.TypeString {
		p = quality.ParsePriority(args[0].String())
	}
	if !running() {
		return js.ValueOf(quality.CanAnimate(quality.TierMinimal, nil, p))
	}
	return js.ValueOf(kernelInstance.Monitor().Quality().CanAnimate(p))
}

func jsGetHardwareInfo(this js.Value, args []js.Value) interface{} {
	if !running() {
		return js.Null()
	}
	return toJS(kernelInstance.Monitor().Hardware())
}

func jsRefreshHardware(this js.Value, args []js.Value) interface{} {
	if !running() {
		return js.Null()
	}
	return toJS(kernelInstance.Monitor().RefreshHardware())
}

func jsGetReport(this js.Value, args []js.Value) interface{} {
	if !running() {
		return js.Null()
	}
	return toJS(kernelInstance.Monitor().Report())
}

func jsSetOptions(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		return errorValue("missing options object")
	}
	if !running() {
		return errorValue("monitor not running")
	}
	m := kernelInstance.Monitor()
	opts := readOptions(args[0], m.Options())
	if err := m.SetOptions(opts); err != nil {
		return js.ValueOf(map[string]interface{}{"success": false, "error": err.Error()})
	}
	return js.ValueOf(map[string]interface{}{"success": true})
}

func jsGetKernelStats(this js.Value, args []js.Value) interface{} {
	if kernelInstance == nil {
		return js.Null()
	}
	stats := map[string]interface{}{
		"session":   kernelInstance.sessionID,
		"state":     kernelInstance.StateName(),
		"uptime":    time.Since(kernelInstance.startTime).String(),
		"startedAt": kernelInstance.startTime.Format(time.RFC3339),
	}
	if running() {
		m := kernelInstance.Monitor()
		evaluations, transitions := m.Quality().Stats()
		stats["evaluations"] = evaluations
		stats["transitions"] = transitions
		stats["pendingReleases"] = m.PendingReleases()
	}
	return js.ValueOf(stats)
}

// jsCollectInstruments returns the OpenTelemetry aggregation as JSON.
func jsCollectInstruments(this js.Value, args []js.Value) interface{} {
	if kernelInstance == nil || kernelInstance.metrics == nil {
		return js.Null()
	}
	rm, err := kernelInstance.metrics.Collect(context.Background())
	if err != nil {
		return errorValue(err.Error())
	}
	return toJS(rm)
}

// jsPrometheusText renders the live snapshot in the Prometheus text format.
func jsPrometheusText(this js.Value, args []js.Value) interface{} {
	if kernelInstance == nil || kernelInstance.collector == nil {
		return js.ValueOf("")
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(kernelInstance.collector); err != nil {
		return errorValue(err.Error())
	}
	families, err := reg.Gather()
	if err != nil {
		return errorValue(err.Error())
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return errorValue(err.Error())
		}
	}
	return js.ValueOf(buf.String())
}
