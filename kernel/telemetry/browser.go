package telemetry

import "strings"

// BrowserClass groups browsers by compositing strength.
type BrowserClass int

const (
	// BrowserStandard covers Chromium-based browsers.
	BrowserStandard BrowserClass = iota
	// BrowserConstrained covers engines with known weak compositing of
	// blur/backdrop and layered transforms (Gecko, WebKit Safari).
	BrowserConstrained
)

func (c BrowserClass) String() string {
	switch c {
	case BrowserConstrained:
		return "constrained"
	default:
		return "standard"
	}
}

// LagThreshold is the FPS below which a sample counts as lagging.
func (c BrowserClass) LagThreshold() int {
	if c == BrowserConstrained {
		return 30
	}
	return 45
}

// ClassifyBrowser inspects a user agent string.
func ClassifyBrowser(userAgent string) BrowserClass {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "firefox"), strings.Contains(ua, "fxios"):
		return BrowserConstrained
	case strings.Contains(ua, "safari") &&
		!strings.Contains(ua, "chrome") &&
		!strings.Contains(ua, "chromium") &&
		!strings.Contains(ua, "crios") &&
		!strings.Contains(ua, "edg") &&
		!strings.Contains(ua, "android"):
		return BrowserConstrained
	default:
		return BrowserStandard
	}
}

// ParseBrowserClass maps "standard"/"constrained" to a class.
func ParseBrowserClass(name string) (BrowserClass, bool) {
	switch strings.ToLower(name) {
	case "standard":
		return BrowserStandard, true
	case "constrained":
		return BrowserConstrained, true
	}
	return BrowserStandard, false
}
