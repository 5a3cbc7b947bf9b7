package telemetry

import "strings"

// Rating classifies a Web Vitals value.
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
	RatingUnknown          Rating = "unknown"
)

type vitalThreshold struct {
	good float64
	poor float64
}

// vitalThresholds are the published Web Vitals boundaries.
var vitalThresholds = map[string]vitalThreshold{
	"lcp":  {good: 2500, poor: 4000},
	"inp":  {good: 200, poor: 500},
	"cls":  {good: 0.1, poor: 0.25},
	"fcp":  {good: 1800, poor: 3000},
	"ttfb": {good: 800, poor: 1800},
}

// VitalStatus rates a Web Vitals value. Nil values and unknown names are
// RatingUnknown.
func VitalStatus(name string, value *float64) Rating {
	t, ok := vitalThresholds[strings.ToLower(name)]
	if !ok || value == nil {
		return RatingUnknown
	}
	switch {
	case *value <= t.good:
		return RatingGood
	case *value <= t.poor:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// FPSStatus buckets a frame rate.
func FPSStatus(fps *int) string {
	if fps == nil {
		return "unknown"
	}
	switch {
	case *fps >= 55:
		return "excellent"
	case *fps >= 40:
		return "good"
	case *fps >= 25:
		return "fair"
	default:
		return "poor"
	}
}

// Score condenses a snapshot into 0..100.
func Score(s MetricsSnapshot) int {
	score := 100

	if s.AverageFPS != nil {
		switch avg := *s.AverageFPS; {
		case avg < 25:
			score -= 40
		case avg < 40:
			score -= 25
		case avg < 55:
			score -= 10
		}
	}

	for name, v := range s.vitals() {
		switch VitalStatus(name, v) {
		case RatingNeedsImprovement:
			score -= 5
		case RatingPoor:
			score -= 15
		}
	}

	switch {
	case s.LongTasks > 10:
		score -= 10
	case s.LongTasks > 3:
		score -= 5
	}

	if s.MemoryPercentage != nil && *s.MemoryPercentage > 80 {
		score -= 10
	}

	if score < 0 {
		return 0
	}
	return score
}

// Grade maps Score to a letter.
func Grade(s MetricsSnapshot) string {
	switch score := Score(s); {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// Recommendations returns advisory text for an observability UI. The
// quality controller never reads it.
func Recommendations(s MetricsSnapshot) []string {
	var out []string

	if s.AverageFPS != nil && *s.AverageFPS < 40 {
		out = append(out, "Frame rate is low: reduce animation complexity")
	} else if s.IsLagging {
		out = append(out, "Frame drops detected: limit concurrent animations")
	}
	if s.LongTasks > 3 {
		out = append(out, "Break up long tasks to keep the main thread responsive")
	}
	if VitalStatus("lcp", s.LCP) == RatingPoor {
		out = append(out, "Largest paint is slow: preload hero media and defer offscreen images")
	}
	if r := VitalStatus("cls", s.CLS); r == RatingPoor || r == RatingNeedsImprovement {
		out = append(out, "Reserve space for media and embeds to reduce layout shift")
	}
	if r := VitalStatus("inp", s.INP); r == RatingPoor || r == RatingNeedsImprovement {
		out = append(out, "Interactions are slow: move heavy handlers off the main thread")
	}
	if s.MemoryPercentage != nil && *s.MemoryPercentage > 80 {
		out = append(out, "Memory usage is high: release unused resources")
	}
	if s.GPUUsage != nil && *s.GPUUsage > 80 {
		out = append(out, "GPU is under heavy load: avoid blur and stacked layers")
	}
	if s.CPUUsage != nil && *s.CPUUsage > 80 {
		out = append(out, "CPU is under heavy load: reduce concurrent animations")
	}
	if s.ThermalState == ThermalSerious || s.ThermalState == ThermalCritical {
		out = append(out, "Device is under sustained load: prefer reduced quality")
	}
	if s.SaveData != nil && *s.SaveData {
		out = append(out, "Data saver is on: avoid autoplaying media")
	}
	return out
}

func (s MetricsSnapshot) vitals() map[string]*float64 {
	return map[string]*float64{
		"lcp":  s.LCP,
		"inp":  s.INP,
		"cls":  s.CLS,
		"fcp":  s.FCP,
		"ttfb": s.TTFB,
	}
}
