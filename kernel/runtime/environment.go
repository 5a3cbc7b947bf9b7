package runtime

// GPUIdentity is the raw renderer identification an Environment reports.
type GPUIdentity struct {
	Vendor   string
	Renderer string
}

// FlagProbe checks a single capability. A panic or false both mean absent.
type FlagProbe struct {
	Name  string
	Check func() bool
}

// Environment supplies the raw readings for a detection pass. Each method
// is one independent probe; an error leaves only that section unknown.
type Environment interface {
	CPU() (CPUInfo, error)
	Memory() (MemoryInfo, error)
	GPU() (GPUIdentity, error)
	Display() (DisplayInfo, error)
	Platform() (PlatformInfo, error)
	Battery() (BatteryInfo, error)
	Network() (NetworkInfo, error)
	// CapabilityProbes lists the feature checks keyed by Capabilities
	// field ("webgl", "webgl2", "webgpu", "webassembly", "workers",
	// "localStorage", "sessionStorage", "indexedDB").
	CapabilityProbes() []FlagProbe
}
