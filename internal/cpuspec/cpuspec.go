// Package cpuspec describes the processor and host load the engine's timing loops run on.
// Hybrid parts schedule the loops on efficiency cores unless told otherwise,
// which shows up as drift, so probe reports what it finds.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about the processor
type CPUSpec struct {
	BrandName        string
	LogicalCores     int
	PerformanceCores int // 0 when the part is not a known hybrid design
	Features         []string
}

var (
	intelHybridRegex = regexp.MustCompile(`intel.*(?:core.*i[3579]-(1[234]\d{3})|core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3}))`)
	appleRegex       = regexp.MustCompile(`apple\s+(m[1-4](?:\s+(?:pro|max|ultra))?)`)

	// Performance cores by model family, keyed on the first three digits
	// for Core i parts.
	intelCorePCores = map[string]int{
		"129": 8, "127": 8, "126": 6, "124": 6, "121": 4,
		"139": 8, "137": 8, "136": 6, "135": 6, "134": 6, "131": 4,
		"149": 8, "147": 8, "146": 6, "144": 6, "141": 4,
	}
	intelUltraPCores = map[string]int{
		"285": 8, "265": 8, "255": 8, "235": 6, "225": 4,
	}
	applePCores = map[string]int{
		"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
		"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
		"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
		"m4": 6, "m4 pro": 8, "m4 max": 12,
	}

	// SIMD extensions listed in the probe report
	reportedFeatures = []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.SSE2, "sse2"},
		{cpuid.SSE4, "sse4.1"},
		{cpuid.AVX, "avx"},
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "neon"},
	}
)

// GetCPUSpec inspects the running processor
func GetCPUSpec() CPUSpec {
	spec := CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PerformanceCores: performanceCores(cpuid.CPU.BrandName),
	}
	if spec.LogicalCores <= 0 {
		spec.LogicalCores = runtime.NumCPU()
	}
	for _, f := range reportedFeatures {
		if cpuid.CPU.Supports(f.id) {
			spec.Features = append(spec.Features, f.name)
		}
	}
	return spec
}

// Hybrid reports whether the part mixes performance and efficiency cores
func (c CPUSpec) Hybrid() bool {
	return c.PerformanceCores > 0 && c.PerformanceCores < c.LogicalCores
}

func performanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if m := intelHybridRegex.FindStringSubmatch(brandName); m != nil {
		if m[1] != "" {
			return intelCorePCores[m[1][:3]]
		}
		return intelUltraPCores[m[3]]
	}
	if m := appleRegex.FindStringSubmatch(brandName); m != nil {
		return applePCores[strings.Join(strings.Fields(m[1]), " ")]
	}
	return 0
}
