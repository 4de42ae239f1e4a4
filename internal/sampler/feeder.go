package sampler

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

// Feeder periodically copies host state into the vconf store and the
// connection manager, standing in for the platform daemons that would
// normally publish those keys.
type Feeder struct {
	Interval  time.Duration
	SysfsRoot string
	Battery   bool

	vconf *native.Vconf
	conn  *native.Connection
	log   *logging.Logger

	network func(context.Context) (native.ConnectionState, error)
	memory  func(context.Context) (uint64, uint64, error)
}

func NewFeeder(interval time.Duration, vconf *native.Vconf, conn *native.Connection, log *logging.Logger) *Feeder {
	return &Feeder{
		Interval:  interval,
		SysfsRoot: "/sys",
		Battery:   true,
		vconf:     vconf,
		conn:      conn,
		log:       log,
		network:   Network,
		memory:    Memory,
	}
}

// Run feeds once immediately and then on every tick until ctx is done.
func (f *Feeder) Run(ctx context.Context) {
	f.Feed(ctx)
	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.Feed(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Feed performs one round of reads.
func (f *Feeder) Feed(ctx context.Context) {
	if level, charging, ok := f.battery(); f.Battery && ok {
		f.vconf.SetInt(native.KeyBatteryCapacity, int(level))
		f.vconf.SetBool(native.KeyBatteryCharging, charging)
	}
	if pct, ok := f.brightness(); ok {
		f.vconf.SetInt(native.KeyDisplayBrightness, int(pct))
	}
	if f.memory != nil {
		if total, avail, err := f.memory(ctx); err == nil && total > 0 {
			f.vconf.SetInt(native.KeyLowMemory, lowMemoryLevel(total, avail))
		}
	}
	if f.conn != nil && f.network != nil {
		st, err := f.network(ctx)
		if err != nil {
			f.log.Debugf("sampler: network read failed: %v", err)
			return
		}
		f.conn.Update(st)
	}
}

func lowMemoryLevel(total, avail uint64) int {
	switch ratio := float64(avail) / float64(total); {
	case ratio < 0.05:
		return native.LowMemoryHardWarn
	case ratio < 0.10:
		return native.LowMemorySoft
	}
	return native.LowMemoryNormal
}

func (f *Feeder) battery() (level float64, charging bool, ok bool) {
	battPaths, _ := filepath.Glob(filepath.Join(f.SysfsRoot, "class/power_supply/BAT*/capacity"))
	for _, capPath := range battPaths {
		base := filepath.Dir(capPath)
		capBytes, err := os.ReadFile(capPath)
		if err != nil {
			continue
		}
		pct := parseFloat(string(capBytes))
		stateBytes, _ := os.ReadFile(filepath.Join(base, "status"))
		state := strings.TrimSpace(string(stateBytes))
		return pct, state == "Charging" || state == "Full", true
	}
	return 0, false, false
}

func (f *Feeder) brightness() (float64, bool) {
	dirs, _ := filepath.Glob(filepath.Join(f.SysfsRoot, "class/backlight/*"))
	for _, dir := range dirs {
		cur, err1 := os.ReadFile(filepath.Join(dir, "brightness"))
		limit, err2 := os.ReadFile(filepath.Join(dir, "max_brightness"))
		if err1 != nil || err2 != nil {
			continue
		}
		m := parseFloat(string(limit))
		if m <= 0 {
			continue
		}
		return 100 * parseFloat(string(cur)) / m, true
	}
	return 0, false
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
