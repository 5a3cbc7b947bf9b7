// Package cpu runs the off-thread CPU benchmark: a worker measures compute
// throughput against its own baseline and reports usage over a small
// message protocol.
package cpu

import (
	"errors"
	"fmt"
)

// MessageType tags a protocol message.
type MessageType string

// worker -> controller
const (
	MsgWorkerReady         MessageType = "worker-ready"
	MsgCPUUsage            MessageType = "cpu-usage"
	MsgBaselineEstablished MessageType = "baseline-established"
	MsgError               MessageType = "error"
)

// controller -> worker
const (
	MsgStart MessageType = "start"
	MsgStop  MessageType = "stop"
)

// ScriptPath is where the browser worker script is served from.
const ScriptPath = "/workers/cpu-benchmark.worker.js"

var (
	// ErrWorkerClosed is returned when posting to a terminated worker.
	ErrWorkerClosed = errors.New("cpu: worker closed")
	// ErrUnsupported is returned by spawners on hosts without workers.
	ErrUnsupported = errors.New("cpu: workers unsupported")
)

// Message is the only state that crosses the worker boundary.
type Message struct {
	Type     MessageType `json:"type"`
	CPUUsage *float64    `json:"cpuUsage,omitempty"`
	Score    *float64    `json:"score,omitempty"`
	Baseline *float64    `json:"baseline,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// ToMap renders m as a plain object for postMessage.
func (m Message) ToMap() map[string]interface{} {
	out := map[string]interface{}{"type": string(m.Type)}
	if m.CPUUsage != nil {
		out["cpuUsage"] = *m.CPUUsage
	}
	if m.Score != nil {
		out["score"] = *m.Score
	}
	if m.Baseline != nil {
		out["baseline"] = *m.Baseline
	}
	if m.Message != "" {
		out["message"] = m.Message
	}
	return out
}

// WorkerError is a worker-reported failure.
type WorkerError struct {
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("cpu worker: %s", e.Message)
}

// Port is the controller's handle on a running worker.
type Port interface {
	Post(m Message) error
	Terminate()
}

// Spawner starts a worker whose messages are delivered to onMessage and
// whose uncaught failures are delivered to onError. Callbacks must not run
// before the spawner has returned.
type Spawner func(onMessage func(Message), onError func(error)) (Port, error)
