package native

import (
	"fmt"
	"sync"
)

// Keys watched by the system-info sources.
const (
	KeyBatteryCapacity   = "memory/sysman/battery_capacity"
	KeyBatteryCharging   = "memory/sysman/battery_charge_now"
	KeyDisplayBrightness = "db/setting/brightness"
	KeyLanguage          = "db/menu_widget/language"
	KeyRegion            = "db/menu_widget/regionformat"
	KeySIMSlot           = "memory/telephony/sim_slot"
	KeyTelephonySvcType  = "memory/telephony/svctype"
	KeyTelephonyRoaming  = "memory/telephony/svc_roam"
	KeyTelephonyCellID   = "memory/telephony/cell_id"
	KeyTelephonyLAC      = "memory/telephony/lac"
	KeyTelephonyPLMN     = "memory/telephony/plmn"
	KeyTelephonyIMEI     = "memory/telephony/imei"
	KeyFlightMode        = "db/telephony/flight_mode"
	KeyHDMI              = "memory/sysman/hdmi"
	KeyPopSync           = "memory/allshare/status"
	KeyLowMemory         = "memory/sysman/low_memory"
)

// Low-memory levels stored under KeyLowMemory.
const (
	LowMemoryNormal   = 1
	LowMemorySoft     = 2
	LowMemoryHardWarn = 4
)

// ErrKeyNotFound is returned for keys that were never written.
type ErrKeyNotFound string

func (e ErrKeyNotFound) Error() string { return fmt.Sprintf("vconf: key %q not found", string(e)) }

// KeyChangedFunc is called after a key's value changed.
type KeyChangedFunc func(key string)

type notifier struct {
	id uint64
	fn KeyChangedFunc
}

// Vconf is an in-process key-value store with change notification.
type Vconf struct {
	mu        sync.Mutex
	values    map[string]interface{}
	notifiers map[string][]notifier
	nextID    uint64
}

func NewVconf() *Vconf {
	return &Vconf{
		values:    make(map[string]interface{}),
		notifiers: make(map[string][]notifier),
	}
}

func (v *Vconf) SetInt(key string, value int)       { v.set(key, value) }
func (v *Vconf) SetString(key string, value string) { v.set(key, value) }
func (v *Vconf) SetBool(key string, value bool)     { v.set(key, value) }

func (v *Vconf) set(key string, value interface{}) {
	v.mu.Lock()
	old, existed := v.values[key]
	if existed && old == value {
		v.mu.Unlock()
		return
	}
	v.values[key] = value
	fns := make([]KeyChangedFunc, 0, len(v.notifiers[key]))
	for _, n := range v.notifiers[key] {
		fns = append(fns, n.fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

func (v *Vconf) get(key string) (interface{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.values[key]
	if !ok {
		return nil, ErrKeyNotFound(key)
	}
	return val, nil
}

func (v *Vconf) GetInt(key string) (int, error) {
	val, err := v.get(key)
	if err != nil {
		return 0, err
	}
	i, ok := val.(int)
	if !ok {
		return 0, fmt.Errorf("vconf: key %q holds %T, not int", key, val)
	}
	return i, nil
}

func (v *Vconf) GetString(key string) (string, error) {
	val, err := v.get(key)
	if err != nil {
		return "", err
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("vconf: key %q holds %T, not string", key, val)
	}
	return s, nil
}

func (v *Vconf) GetBool(key string) (bool, error) {
	val, err := v.get(key)
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("vconf: key %q holds %T, not bool", key, val)
	}
	return b, nil
}

// Notify registers fn for changes of key.
func (v *Vconf) Notify(key string, fn KeyChangedFunc) (cancel func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := v.nextID
	v.notifiers[key] = append(v.notifiers[key], notifier{id: id, fn: fn})
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		list := v.notifiers[key]
		for i, n := range list {
			if n.id == id {
				v.notifiers[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(v.notifiers[key]) == 0 {
			delete(v.notifiers, key)
		}
	}
}

// Watchers returns the number of registered notifiers per key.
func (v *Vconf) Watchers() map[string]int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]int, len(v.notifiers))
	for k, list := range v.notifiers {
		out[k] = len(list)
	}
	return out
}
