package platform

import (
	"fmt"

	"github.com/nmxmxh/perfscope/kernel/utils"
)

// Probe is one named way of reading a capability. Vendor-prefixed APIs are
// expressed as an ordered list of probes.
type Probe[T any] struct {
	Name string
	Run  func() (T, error)
}

// FirstOf runs probes in order and returns the first success together with
// the winning probe's name. A panicking probe counts as a failure. When every
// probe fails the error is ErrUnsupported wrapping the last failure.
func FirstOf[T any](probes ...Probe[T]) (T, string, error) {
	var zero T
	var last error
	for _, p := range probes {
		v, err := runProbe(p)
		if err == nil {
			return v, p.Name, nil
		}
		last = err
	}
	if last == nil {
		return zero, "", ErrUnsupported
	}
	return zero, "", fmt.Errorf("%w: %v", ErrUnsupported, last)
}

func runProbe[T any](p Probe[T]) (v T, err error) {
	defer utils.RecoverError(p.Name, &err)
	if p.Run == nil {
		return v, ErrUnsupported
	}
	return p.Run()
}
