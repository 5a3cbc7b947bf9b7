// Package platform describes the host primitives the telemetry pipeline
// consumes: frame callbacks, performance observers, the web-vitals library
// and the optional memory/network/resource timing APIs.
//
// The browser build binds them through syscall/js; native builds get
// simulated or OS-backed versions. A nil primitive means unsupported.
package platform

import "errors"

// ErrUnsupported is returned when the host lacks a capability.
var ErrUnsupported = errors.New("platform: capability unsupported")

// FrameHandle identifies a pending frame request.
type FrameHandle int

// FrameScheduler delivers one callback per rendered frame
// (requestAnimationFrame in the browser).
type FrameScheduler interface {
	// RequestFrame schedules cb for the next frame. timestampMs is a
	// monotonic high-resolution timestamp in milliseconds.
	RequestFrame(cb func(timestampMs float64)) (FrameHandle, error)
	// CancelFrame drops a pending request. Unknown handles are ignored.
	CancelFrame(h FrameHandle)
	// Now returns the current time on the same base as frame timestamps
	// (performance.now in the browser).
	Now() float64
}

// EntryTypeLongTask is the performance entry type for main-thread long tasks.
const EntryTypeLongTask = "longtask"

// ObserverFactory creates performance observers filtered to one entry type.
type ObserverFactory interface {
	// Observe calls onBatch with the number of entries of each delivered
	// batch. The returned disconnect func stops observation.
	Observe(entryType string, onBatch func(entries int)) (disconnect func(), err error)
}

// VitalEvent is one report from the perceptual metrics library.
type VitalEvent struct {
	Name  string
	Value float64
}

// VitalsSource exposes the five subscribable Web Vitals (LCP, INP, CLS,
// FCP, TTFB).
type VitalsSource interface {
	Subscribe(metric string, fn func(VitalEvent)) (unsubscribe func(), err error)
}

// MemoryStats is the JS heap usage reported by the host.
type MemoryStats struct {
	UsedBytes  float64
	LimitBytes float64
}

// MemoryProbe reads heap usage (performance.memory).
type MemoryProbe interface {
	Memory() (MemoryStats, error)
}

// NetworkStats mirrors the Network Information API.
type NetworkStats struct {
	EffectiveType string
	DownlinkMbps  float64
	RTTMs         float64
	SaveData      bool
}

// NetworkProbe reads the connection class.
type NetworkProbe interface {
	Network() (NetworkStats, error)
}

// ResourceStats summarises resource timing entries.
type ResourceStats struct {
	Count        int
	TransferSize float64
}

// ResourceProbe reads resource timing entries.
type ResourceProbe interface {
	Resources() (ResourceStats, error)
}

// Host bundles the primitives available to a monitoring session.
type Host struct {
	Frames    FrameScheduler
	Observers ObserverFactory
	Vitals    VitalsSource
	Memory    MemoryProbe
	Network   NetworkProbe
	Resources ResourceProbe
	// UserAgent feeds browser classification. Empty on native hosts.
	UserAgent string
}
