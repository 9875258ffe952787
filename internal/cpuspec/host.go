package cpuspec

import (
	"context"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/pulseshim/internal/errors"
)

// HostLoad is the memory and scheduler load of the machine at probe time
type HostLoad struct {
	TotalBytes     uint64
	AvailableBytes uint64
	UsedPercent    float64

	// Load averages are left zero where the platform has none
	HasLoad bool
	Load1   float64
	Load5   float64
	Load15  float64
}

// GetHostLoad samples memory and load averages. A missing load average is
// not an error.
func GetHostLoad(ctx context.Context) (HostLoad, error) {
	var hl HostLoad

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return hl, errors.New(err).
			Component("cpuspec").
			Category(errors.CategorySystem).
			Context("operation", "virtual_memory").
			Build()
	}
	hl.TotalBytes = vm.Total
	hl.AvailableBytes = vm.Available
	hl.UsedPercent = vm.UsedPercent

	if avg, err := load.AvgWithContext(ctx); err == nil {
		hl.HasLoad = true
		hl.Load1, hl.Load5, hl.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	return hl, nil
}
