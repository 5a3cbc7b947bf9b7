//go:build !js || !wasm
// +build !js !wasm

package cpu

import (
	psutil "github.com/shirou/gopsutil/v3/cpu"
)

// SystemUsage reads whole-machine CPU utilisation since the previous call.
func SystemUsage() (float64, error) {
	percents, err := psutil.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, ErrUnsupported
	}
	return percents[0], nil
}

// DefaultSpawner runs the benchmark on a goroutine, reporting OS usage.
func DefaultSpawner() Spawner {
	opts := DefaultLocalOptions()
	opts.Usage = SystemUsage
	return LocalSpawner(opts)
}
