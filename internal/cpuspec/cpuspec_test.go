package cpuspec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceCores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		brand string
		want  int
	}{
		{"12th Gen Intel(R) Core(TM) i9-12900K", 8},
		{"13th Gen Intel(R) Core(TM) i5-13600K", 6},
		{"Intel(R) Core(TM) i3-14100", 4},
		{"Intel(R) Core(TM) Ultra 7 265K", 8},
		{"Intel(R) Core(TM) Ultra 5 Processor 225", 4},
		{"Apple M1", 4},
		{"Apple M2 Max", 12},
		{"Apple M4 Pro", 8},
		{"Intel(R) Core(TM) i7-8700K CPU @ 3.70GHz", 0},
		{"AMD Ryzen 9 7950X 16-Core Processor", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, performanceCores(tt.brand), tt.brand)
	}
}

func TestHybrid(t *testing.T) {
	t.Parallel()

	assert.True(t, CPUSpec{PerformanceCores: 8, LogicalCores: 24}.Hybrid())
	assert.False(t, CPUSpec{PerformanceCores: 0, LogicalCores: 16}.Hybrid())
	assert.False(t, CPUSpec{PerformanceCores: 4, LogicalCores: 4}.Hybrid())
}

func TestGetCPUSpec(t *testing.T) {
	t.Parallel()

	spec := GetCPUSpec()
	assert.Positive(t, spec.LogicalCores)
}

func TestGetHostLoad(t *testing.T) {
	t.Parallel()

	hl, err := GetHostLoad(context.Background())
	require.NoError(t, err)
	assert.Positive(t, hl.TotalBytes)
	assert.LessOrEqual(t, hl.AvailableBytes, hl.TotalBytes)
	assert.GreaterOrEqual(t, hl.UsedPercent, 0.0)
	if hl.HasLoad {
		assert.GreaterOrEqual(t, hl.Load1, 0.0)
	}
}
