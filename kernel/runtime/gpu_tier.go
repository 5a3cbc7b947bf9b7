package runtime

import (
	"strings"

	"github.com/nmxmxh/perfscope/kernel/telemetry"
)

// Keyword tables are matched in order high, medium, low against the
// lower-cased renderer string; the first hit decides.
var (
	highTierGPUs = []string{
		"rtx", "titan", "quadro", "radeon pro", "rx 6", "rx 7", "rx 9",
		"apple m1 pro", "apple m1 max", "apple m1 ultra",
		"apple m2", "apple m3", "apple m4", "arc a7",
	}
	mediumTierGPUs = []string{
		"gtx", "radeon rx", "rx 5", "vega", "apple m1", "apple gpu",
		"iris xe", "iris(r) xe", "iris plus", "adreno 7", "adreno (tm) 7",
		"mali-g7", "arc",
	}
	lowTierGPUs = []string{
		"intel hd", "intel uhd", "intel(r) hd", "intel(r) uhd", "mali", "adreno",
		"powervr", "swiftshader", "llvmpipe", "software", "microsoft basic",
	}
)

// ClassifyGPU maps a renderer string to a tier.
func ClassifyGPU(renderer string) telemetry.GPUTier {
	r := strings.ToLower(renderer)
	if r == "" {
		return telemetry.GPUTierUnknown
	}
	for _, table := range []struct {
		keywords []string
		tier     telemetry.GPUTier
	}{
		{highTierGPUs, telemetry.GPUTierHigh},
		{mediumTierGPUs, telemetry.GPUTierMedium},
		{lowTierGPUs, telemetry.GPUTierLow},
	} {
		for _, kw := range table.keywords {
			if strings.Contains(r, kw) {
				return table.tier
			}
		}
	}
	return telemetry.GPUTierUnknown
}
