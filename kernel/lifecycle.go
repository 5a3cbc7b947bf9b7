//go:build js && wasm
// +build js,wasm

package main

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nmxmxh/perfscope/kernel/cpu"
	"github.com/nmxmxh/perfscope/kernel/gpu"
	"github.com/nmxmxh/perfscope/kernel/instrument"
	"github.com/nmxmxh/perfscope/kernel/monitor"
	"github.com/nmxmxh/perfscope/kernel/platform"
	"github.com/nmxmxh/perfscope/kernel/quality"
	"github.com/nmxmxh/perfscope/kernel/runtime"
	"github.com/nmxmxh/perfscope/kernel/telemetry"
	"github.com/nmxmxh/perfscope/kernel/utils"
)

// KernelState represents the lifecycle state of the kernel
type KernelState int32

const (
	StateUninitialized KernelState = iota
	StateBooting
	StateRunning
	StateStopping
	StateStopped
	StatePanic
)

var stateNames = map[KernelState]string{
	StateUninitialized: "UNINITIALIZED",
	StateBooting:       "BOOTING",
	StateRunning:       "RUNNING",
	StateStopping:      "STOPPING",
	StateStopped:       "STOPPED",
	StatePanic:         "PANIC",
}

// KernelConfig holds kernel configuration
type KernelConfig struct {
	Options  monitor.Options
	Metrics  bool // in-memory OpenTelemetry instruments
	LogLevel utils.LogLevel
}

// Kernel owns the page's monitoring session and its JS surface.
type Kernel struct {
	state     atomic.Int32
	config    KernelConfig
	logger    *utils.Logger
	sessionID string

	monitor   *monitor.Monitor
	metrics   *instrument.Metrics
	collector *instrument.Collector

	startTime time.Time
	mu        sync.Mutex
	unsub     []func()
}

// NewKernel creates a new kernel instance
func NewKernel(config KernelConfig) *Kernel {
	logger := utils.NewLogger(utils.LoggerConfig{
		Level:      config.LogLevel,
		Component:  "perfscope",
		Colorize:   false,
		ShowCaller: false,
	})
	utils.SetGlobalLogger(logger)

	k := &Kernel{
		config:    config,
		logger:    logger,
		sessionID: utils.NewSessionID(),
	}
	k.setState(StateUninitialized)
	return k
}

// Boot builds the monitor against the browser host and starts it.
func (k *Kernel) Boot() {
	k.startTime = time.Now()
	defer k.recoverPanic()

	if !k.transitionState(StateUninitialized, StateBooting) {
		k.logger.Error("Invalid boot transition", utils.String("current", k.StateName()))
		return
	}

	k.logger.Info("perfscope boot sequence",
		utils.String("session", k.sessionID),
		utils.Bool("fps", k.config.Options.FPS),
		utils.Bool("cpu", k.config.Options.CPU),
		utils.Bool("gpu", k.config.Options.GPU))

	deps := monitor.Deps{
		Host:     platform.Default(),
		Detector: runtime.Default(),
		Spawner:  cpu.DefaultSpawner(),
		Surfaces: gpu.DefaultSurface,
		Logger:   k.logger.Named("monitor"),
	}
	if k.config.Metrics {
		metrics, err := instrument.NewMetrics(instrument.MetricsConfig{
			ServiceName: "perfscope",
			Attributes:  map[string]string{"session.id": k.sessionID},
		})
		if err != nil {
			k.logger.Warn("Instruments unavailable", utils.Err(err))
		} else {
			k.metrics = metrics
			deps.Metrics = metrics
		}
	}

	m := monitor.New(deps, k.config.Options)

	k.mu.Lock()
	k.monitor = m
	k.collector = instrument.NewCollector(m.Snapshot, m.Quality().Tier)
	k.unsub = append(k.unsub,
		m.Quality().Subscribe(func(ev quality.Evaluation) {
			k.dispatch(eventQuality, qualityPayload(ev))
		}),
		m.Subscribe(func(snap telemetry.MetricsSnapshot, changed telemetry.Category) {
			if changed == telemetry.CategoryFrame {
				k.dispatch(eventMetrics, snap)
			}
		}),
	)
	k.mu.Unlock()

	if err := m.Start(); err != nil {
		k.logger.Error("Monitor failed to start", utils.Err(err))
		return
	}

	if !k.transitionState(StateBooting, StateRunning) {
		return
	}
	k.logger.Info("perfscope running")
	k.notifyHost("kernel:running", map[string]interface{}{
		"session": k.sessionID,
	})
}

// Shutdown closes the monitor and flushes instruments. Safe to call more
// than once.
func (k *Kernel) Shutdown() {
	state := KernelState(k.state.Load())
	if state == StateStopping || state == StateStopped {
		return
	}
	k.setState(StateStopping)
	k.logger.Info("perfscope shutting down")

	k.mu.Lock()
	unsub := k.unsub
	k.unsub = nil
	k.mu.Unlock()
	for _, fn := range unsub {
		fn()
	}

	if m := k.Monitor(); m != nil {
		m.Close()
	}
	if k.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := k.metrics.Shutdown(ctx); err != nil {
			k.logger.Warn("Instrument shutdown failed", utils.Err(err))
		}
		cancel()
	}

	k.setState(StateStopped)
	k.logger.Info("perfscope stopped")
	k.notifyHost("kernel:shutdown", nil)
}

// Monitor returns the session, nil before Boot.
func (k *Kernel) Monitor() *monitor.Monitor {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.monitor
}

// State Management
func (k *Kernel) setState(s KernelState) {
	k.state.Store(int32(s))
}

func (k *Kernel) transitionState(from, to KernelState) bool {
	return k.state.CompareAndSwap(int32(from), int32(to))
}

func (k *Kernel) StateName() string {
	return stateNames[KernelState(k.state.Load())]
}

// Helper: Global Panic Recovery
func (k *Kernel) recoverPanic() {
	if r := recover(); r != nil {
		k.setState(StatePanic)
		stack := string(debug.Stack())
		k.logger.Error("KERNEL PANIC",
			utils.Any("reason", r),
			utils.String("stack", stack))

		k.notifyHost("kernel:panic", map[string]interface{}{
			"reason": fmt.Sprintf("%v", r),
			"stack":  stack,
		})
	}
}

func qualityPayload(ev quality.Evaluation) map[string]interface{} {
	payload := map[string]interface{}{
		"tier":     string(ev.Tier),
		"previous": string(ev.Previous),
		"changed":  ev.Changed,
		"config":   ev.Config,
	}
	if ev.AverageFPS != nil {
		payload["averageFps"] = *ev.AverageFPS
	}
	if ev.FPS != nil {
		payload["fps"] = *ev.FPS
	}
	return payload
}
