package native

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Platform feature keys consulted by the device API core.
const (
	FeatureWifi          = "tizen.org/feature/network.wifi"
	FeatureTelephony     = "tizen.org/feature/network.telephony"
	FeatureAccelerometer = "tizen.org/feature/sensor.accelerometer"
	FeatureBattery       = "tizen.org/feature/battery"
	FeatureScreen        = "tizen.org/feature/screen"
	FeatureScreenWidth   = "tizen.org/feature/screen.width"
	FeatureScreenHeight  = "tizen.org/feature/screen.height"
	FeatureScreenDPI     = "tizen.org/feature/screen.dpi"
	FeatureHDMI          = "tizen.org/feature/screen.output.hdmi"
	FeaturePlatformVer   = "tizen.org/feature/platform.version"
	FeatureProfile       = "tizen.org/feature/profile"
	FeatureCPUArch       = "tizen.org/feature/platform.core.cpu.arch"
	FeatureCPUCount      = "tizen.org/feature/platform.core.cpu.count"
	FeatureMessagePort   = "tizen.org/feature/messageport"
	FeatureCamera        = "tizen.org/feature/camera"
	FeatureLocation      = "tizen.org/feature/location"
	FeatureBluetooth     = "tizen.org/feature/network.bluetooth"
	FeatureNFC           = "tizen.org/feature/network.nfc"
)

// Features is the table of platform feature values (bool, int or string).
type Features struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// MobileProfile returns the feature table of a mobile reference device.
func MobileProfile() *Features {
	return NewFeatures(map[string]interface{}{
		FeatureWifi:          true,
		FeatureTelephony:     true,
		FeatureAccelerometer: true,
		FeatureBattery:       true,
		FeatureScreen:        true,
		FeatureScreenWidth:   720,
		FeatureScreenHeight:  1280,
		FeatureScreenDPI:     306,
		FeatureHDMI:          false,
		FeaturePlatformVer:   "2.2.1",
		FeatureProfile:       "MOBILE_FULL",
		FeatureCPUArch:       "armv7",
		FeatureCPUCount:      4,
		FeatureMessagePort:   true,
		FeatureCamera:        true,
		FeatureLocation:      true,
		FeatureBluetooth:     true,
		FeatureNFC:           false,
	})
}

func NewFeatures(values map[string]interface{}) *Features {
	f := &Features{values: make(map[string]interface{}, len(values))}
	for k, v := range values {
		f.values[k] = v
	}
	return f
}

// Lookup returns the value of key and whether it is known.
func (f *Features) Lookup(key string) (interface{}, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

// Bool reports a boolean feature; unknown or non-bool keys are false.
func (f *Features) Bool(key string) bool {
	v, ok := f.Lookup(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (f *Features) Set(key string, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

// SetString stores a textual override, typed as bool or int when it parses.
func (f *Features) SetString(key, raw string) {
	switch strings.ToLower(raw) {
	case "true":
		f.Set(key, true)
		return
	case "false":
		f.Set(key, false)
		return
	}
	if i, err := strconv.Atoi(raw); err == nil {
		f.Set(key, i)
		return
	}
	f.Set(key, raw)
}

// ParseOverride splits "key=value".
func ParseOverride(s string) (key, value string, err error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", fmt.Errorf("feature override %q: want key=value", s)
	}
	return k, v, nil
}

// All returns a copy of the table.
func (f *Features) All() map[string]interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]interface{}, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}
