package platform

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is a point-in-time resource reading.
type Sample struct {
	CPUPercent    float64
	MemoryRSSByte uint64
}

// Sampler reads host CPU and memory usage on demand (see Read); the
// interval is stored but not used by Read.
type Sampler struct {
	interval time.Duration
}

// NewSampler constructs a Sampler with the given polling interval.
func NewSampler(interval time.Duration) *Sampler {
	return &Sampler{interval: interval}
}

// Read takes a single CPU/memory sample. MemoryRSSByte holds host-wide
// used memory (mem.VirtualMemory Used), not this process's RSS.
// CPU percent is host-relative;
// callers scale it against config.CPULimit for container-aware
// thresholds exactly as the teacher's resource guard does.
func (s *Sampler) Read(ctx context.Context) (Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return Sample{}, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}

	return Sample{CPUPercent: cpuPct, MemoryRSSByte: vm.Used}, nil
}
