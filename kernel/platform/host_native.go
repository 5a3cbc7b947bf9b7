//go:build !js || !wasm
// +build !js !wasm

package platform

import (
	"github.com/benbjohnson/clock"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemMemory reports process-host memory through gopsutil.
type systemMemory struct{}

func (systemMemory) Memory() (MemoryStats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemoryStats{}, err
	}
	if vm == nil || vm.Total == 0 {
		return MemoryStats{}, ErrUnsupported
	}
	return MemoryStats{UsedBytes: float64(vm.Used), LimitBytes: float64(vm.Total)}, nil
}

// Default returns the native host: a 60 Hz simulated frame source and OS
// memory statistics. Observers, vitals, network and resource timing do not
// exist outside a browser and stay nil.
func Default() Host {
	return Host{
		Frames: NewTickerFrames(clock.New(), 60),
		Memory: systemMemory{},
	}
}
