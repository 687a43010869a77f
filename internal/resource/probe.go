package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Headroom is the system capacity currently free for a new training job.
type Headroom struct {
	FreeCores    float64
	FreeMemoryMB float64
}

// Probe reports current resource headroom. The resource manager consults it
// at admission time; the reading is best-effort and not reserved.
type Probe interface {
	Headroom(ctx context.Context) (Headroom, error)
}

// SystemProbe samples live CPU and memory usage via gopsutil.
type SystemProbe struct {
	SampleWindow time.Duration
}

// NewSystemProbe returns a probe with a short default sampling window.
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{SampleWindow: 100 * time.Millisecond}
}

// Headroom samples overall CPU usage over the configured window and converts
// it into an estimate of free cores, plus available memory in MB.
func (p *SystemProbe) Headroom(ctx context.Context) (Headroom, error) {
	percents, err := cpu.PercentWithContext(ctx, p.SampleWindow, false)
	if err != nil || len(percents) == 0 {
		return Headroom{}, fmt.Errorf("sampling cpu usage: %w", err)
	}
	total, err := cpu.Counts(true)
	if err != nil {
		return Headroom{}, fmt.Errorf("counting cpus: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Headroom{}, fmt.Errorf("reading memory: %w", err)
	}

	usedCores := percents[0] / 100.0 * float64(total)
	return Headroom{
		FreeCores:    float64(total) - usedCores,
		FreeMemoryMB: float64(vm.Available) / (1024 * 1024),
	}, nil
}
