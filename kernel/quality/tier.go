// Package quality turns frame-rate measurements into a rendering tier and
// the configuration bundle animation code scales itself by.
package quality

import (
	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

// Tier is a discrete rendering-fidelity level.
type Tier string

const (
	TierFull    Tier = "full"
	TierReduced Tier = "reduced"
	TierMinimal Tier = "minimal"
)

// Config is what consumers read to scale their animations.
type Config struct {
	Tier                    Tier `json:"tier"`
	ShouldReduceAnimations  bool `json:"shouldReduceAnimations"`
	MaxConcurrentAnimations int  `json:"maxConcurrentAnimations"`
	MaxGPULayers            int  `json:"maxGpuLayers"`
	AllowInfiniteAnimations bool `json:"allowInfiniteAnimations"`
	AllowComplexBlur        bool `json:"allowComplexBlur"`
	AllowHeavyTransforms    bool `json:"allowHeavyTransforms"`
}

// configs is total over Tier.
var configs = map[Tier]Config{
	TierFull: {
		Tier:                    TierFull,
		MaxConcurrentAnimations: 20,
		MaxGPULayers:            50,
		AllowInfiniteAnimations: true,
		AllowComplexBlur:        true,
		AllowHeavyTransforms:    true,
	},
	TierReduced: {
		Tier:                    TierReduced,
		ShouldReduceAnimations:  true,
		MaxConcurrentAnimations: 8,
		MaxGPULayers:            20,
		AllowInfiniteAnimations: true,
	},
	TierMinimal: {
		Tier:                    TierMinimal,
		ShouldReduceAnimations:  true,
		MaxConcurrentAnimations: 3,
		MaxGPULayers:            5,
	},
}

// Tiers lists every tier from richest to leanest.
func Tiers() []Tier {
	return []Tier{TierFull, TierReduced, TierMinimal}
}

// ConfigFor returns a fresh copy of the tier's configuration. Unknown tiers
// get the minimal configuration.
func ConfigFor(t Tier) Config {
	if c, ok := configs[t]; ok {
		return c
	}
	return configs[TierMinimal]
}

// Thresholds are the averageFps boundaries for one browser class.
type Thresholds struct {
	Excellent int // at or above: full
	Good      int // at or above: reduced
	Poor      int // below: minimal
}

// ThresholdsFor returns the boundaries for class. Constrained browsers get
// thresholds five frames lower.
func ThresholdsFor(class telemetry.BrowserClass) Thresholds {
	if class == telemetry.BrowserConstrained {
		return Thresholds{Excellent: 50, Good: 35, Poor: 20}
	}
	return Thresholds{Excellent: 55, Good: 40, Poor: 25}
}

// Evaluate derives the tier from the averaged frame rate. It is pure: the
// same inputs always give the same tier. No measurement yet means minimal,
// and constrained browsers never get full.
func Evaluate(averageFPS *int, class telemetry.BrowserClass) Tier {
	if averageFPS == nil {
		return TierMinimal
	}
	th := ThresholdsFor(class)
	avg := *averageFPS

	var tier Tier
	switch {
	case avg >= th.Excellent:
		tier = TierFull
	case avg >= th.Good:
		tier = TierReduced
	case avg < th.Poor:
		tier = TierMinimal
	default:
		// between poor and good
		tier = TierReduced
	}
	if class == telemetry.BrowserConstrained && tier == TierFull {
		tier = TierReduced
	}
	return tier
}

// Priority ranks an animation request.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a string to a Priority; unknown values are medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityLow:
		return Priority(s)
	}
	return PriorityMedium
}

// ReducedLowPriorityFloor is the instantaneous FPS below which low-priority
// animations are refused in the reduced tier.
const ReducedLowPriorityFloor = 35

// CanAnimate is the request-level gate layered on the tier. Low-priority
// requests are refused in minimal, and in reduced when the instantaneous
// fps is below 35.
func CanAnimate(tier Tier, fps *int, p Priority) bool {
	if p != PriorityLow {
		return true
	}
	switch tier {
	case TierMinimal:
		return false
	case TierReduced:
		return fps == nil || *fps >= ReducedLowPriorityFloor
	default:
		return true
	}
}
