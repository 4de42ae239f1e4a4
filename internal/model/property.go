// Package model holds the property snapshots exchanged between the
// system-info pipeline, its listeners and the dashboard.
package model

import (
	"fmt"
	"strings"
)

// Kind is one SystemInfo property category.
type Kind int

const (
	KindBattery Kind = iota
	KindCPU
	KindStorage
	KindDisplay
	KindDeviceOrientation
	KindBuild
	KindLocale
	KindNetwork
	KindWifiNetwork
	KindCellularNetwork
	KindSIM
	KindPeripheral
	KindMemory
	numKinds
)

var kindNames = [...]string{
	"BATTERY",
	"CPU",
	"STORAGE",
	"DISPLAY",
	"DEVICE_ORIENTATION",
	"BUILD",
	"LOCALE",
	"NETWORK",
	"WIFI_NETWORK",
	"CELLULAR_NETWORK",
	"SIM",
	"PERIPHERAL",
	"MEMORY",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds lists every property kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind accepts property identifiers case-insensitively.
func ParseKind(id string) (Kind, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	for i, name := range kindNames {
		if name == id {
			return Kind(i), true
		}
	}
	return 0, false
}

// Property is a single snapshot of one kind.
type Property interface {
	Kind() Kind
}

// Battery reports power state. Level is a percentage 0-100.
type Battery struct {
	Level      float64 `json:"level"`
	IsCharging bool    `json:"isCharging"`
}

// CPU carries the load percentage 0-100 computed from /proc/stat deltas.
type CPU struct {
	Load   float64 `json:"load"`
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// StorageUnit is one mounted storage device.
type StorageUnit struct {
	Type              string `json:"type"`
	Path              string `json:"path"`
	Capacity          uint64 `json:"capacity"`
	AvailableCapacity uint64 `json:"availableCapacity"`
	IsRemovable       bool   `json:"isRemovable"`
}

// Storage lists all storage units.
type Storage struct {
	Units []StorageUnit `json:"units"`
}

// Equal reports value equality; used to suppress no-op storage broadcasts.
func (s Storage) Equal(o Storage) bool {
	if len(s.Units) != len(o.Units) {
		return false
	}
	for i := range s.Units {
		if s.Units[i] != o.Units[i] {
			return false
		}
	}
	return true
}

// Display describes the main screen. Brightness is a percentage 0-100.
type Display struct {
	ResolutionWidth   int     `json:"resolutionWidth"`
	ResolutionHeight  int     `json:"resolutionHeight"`
	DotsPerInchWidth  int     `json:"dotsPerInchWidth"`
	DotsPerInchHeight int     `json:"dotsPerInchHeight"`
	PhysicalWidth     float64 `json:"physicalWidth"`
	PhysicalHeight    float64 `json:"physicalHeight"`
	Brightness        float64 `json:"brightness"`
}

type DeviceOrientation struct {
	Status         string `json:"status"`
	IsAutoRotation bool   `json:"isAutoRotation"`
}

type Build struct {
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
	BuildVersion string `json:"buildVersion"`
}

type Locale struct {
	Language string `json:"language"`
	Country  string `json:"country"`
}

type Network struct {
	NetworkType string `json:"networkType"`
}

type WifiNetwork struct {
	Status         string  `json:"status"`
	SSID           string  `json:"ssid"`
	IPAddress      string  `json:"ipAddress"`
	IPv6Address    string  `json:"ipv6Address"`
	SignalStrength float64 `json:"signalStrength"`
}

type CellularNetwork struct {
	Status       string `json:"status"`
	APN          string `json:"apn"`
	IPAddress    string `json:"ipAddress"`
	MCC          int    `json:"mcc"`
	MNC          int    `json:"mnc"`
	CellID       int    `json:"cellId"`
	LAC          int    `json:"lac"`
	IsRoaming    bool   `json:"isRoaming"`
	IsFlightMode bool   `json:"isFlightMode"`
	IMEI         string `json:"imei"`
}

type SIM struct {
	State        string `json:"state"`
	OperatorName string `json:"operatorName"`
	MSISDN       string `json:"msisdn"`
	ICCID        string `json:"iccid"`
	MCC          int    `json:"mcc"`
	MNC          int    `json:"mnc"`
	MSIN         string `json:"msin"`
	SPN          string `json:"spn"`
}

type Peripheral struct {
	IsVideoOutputOn bool `json:"isVideoOutputOn"`
}

// Memory captures RAM usage in bytes, plus the platform low-memory status.
type Memory struct {
	Status    string `json:"status"`
	Total     uint64 `json:"total"`
	Available uint64 `json:"available"`
}

func (Battery) Kind() Kind           { return KindBattery }
func (CPU) Kind() Kind               { return KindCPU }
func (Storage) Kind() Kind           { return KindStorage }
func (Display) Kind() Kind           { return KindDisplay }
func (DeviceOrientation) Kind() Kind { return KindDeviceOrientation }
func (Build) Kind() Kind             { return KindBuild }
func (Locale) Kind() Kind            { return KindLocale }
func (Network) Kind() Kind           { return KindNetwork }
func (WifiNetwork) Kind() Kind       { return KindWifiNetwork }
func (CellularNetwork) Kind() Kind   { return KindCellularNetwork }
func (SIM) Kind() Kind               { return KindSIM }
func (Peripheral) Kind() Kind        { return KindPeripheral }
func (Memory) Kind() Kind            { return KindMemory }
