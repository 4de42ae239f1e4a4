// Package sampler reads host state through gopsutil and sysfs and feeds it
// into the platform collaborators.
package sampler

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"

	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
)

// TimesFunc returns the aggregate CPU times since boot.
type TimesFunc func() (cpu.TimesStat, error)

// HostTimes reads /proc/stat through gopsutil.
func HostTimes() (cpu.TimesStat, error) {
	times, err := cpu.Times(false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, errNoCPUTimes
	}
	return times[0], nil
}

// cpuState is the previous sample plus the last computed load.
type cpuState struct {
	usr    float64
	nice   float64
	system float64
	idle   float64
	load   float64
}

// CPUSampler computes the load percentage between two polls.
type CPUSampler struct {
	times TimesFunc

	mu    sync.Mutex
	state cpuState
}

func NewCPUSampler(times TimesFunc) *CPUSampler {
	if times == nil {
		times = HostTimes
	}
	return &CPUSampler{times: times}
}

// Load samples the CPU times and returns the load since the previous call.
// The previous load is kept unless both the total and idle deltas are
// positive.
func (c *CPUSampler) Load() (float64, error) {
	t, err := c.times()
	if err != nil {
		return 0, err
	}
	cur := cpuState{usr: t.User, nice: t.Nice, system: t.System, idle: t.Idle}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	total := (cur.usr + cur.nice + cur.system + cur.idle) - (prev.usr + prev.nice + prev.system + prev.idle)
	idle := cur.idle - prev.idle
	cur.load = prev.load
	if total > 0 && idle > 0 {
		cur.load = 100 * (1 - idle/total)
	}
	c.state = cur
	return cur.load, nil
}

// Snapshot returns the CPU property, with load averages when available.
func (c *CPUSampler) Snapshot() (model.CPU, error) {
	pct, err := c.Load()
	if err != nil {
		return model.CPU{}, err
	}
	out := model.CPU{Load: pct}
	if avg, err := load.Avg(); err == nil {
		out.Load1, out.Load5, out.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	return out, nil
}

func cpuCount(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}
