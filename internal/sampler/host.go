package sampler

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

var errNoCPUTimes = errors.New("sampler: no cpu times reported")

// Storage unit types.
const (
	StorageInternal = "INTERNAL"
	StorageMMC      = "MMC"
	StorageUSBHost  = "USB_HOST"
	StorageUnknown  = "UNKNOWN"
)

var pseudoFS = map[string]bool{
	"proc": true, "sysfs": true, "tmpfs": true, "devtmpfs": true, "devpts": true,
	"cgroup": true, "cgroup2": true, "overlay": true, "squashfs": true, "securityfs": true,
	"debugfs": true, "tracefs": true, "mqueue": true, "pstore": true, "bpf": true,
	"autofs": true, "fusectl": true, "configfs": true, "hugetlbfs": true, "nsfs": true,
}

func storageType(mountpoint, device string) string {
	switch {
	case mountpoint == "/" || strings.HasPrefix(mountpoint, "/opt"):
		return StorageInternal
	case strings.Contains(device, "mmcblk"):
		return StorageMMC
	case strings.HasPrefix(mountpoint, "/media") || strings.HasPrefix(mountpoint, "/run/media") || strings.HasPrefix(mountpoint, "/mnt"):
		return StorageUSBHost
	}
	return StorageUnknown
}

// Storage lists the mounted physical filesystems, sorted by mount point.
func Storage(ctx context.Context) (model.Storage, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return model.Storage{}, err
	}
	var units []model.StorageUnit
	for _, p := range parts {
		if pseudoFS[p.Fstype] || strings.HasPrefix(p.Device, "/dev/loop") {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		typ := storageType(p.Mountpoint, p.Device)
		units = append(units, model.StorageUnit{
			Type:              typ,
			Path:              p.Mountpoint,
			Capacity:          usage.Total,
			AvailableCapacity: usage.Free,
			IsRemovable:       typ == StorageMMC || typ == StorageUSBHost,
		})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return model.Storage{Units: units}, nil
}

// Memory returns the total and available RAM in bytes.
func Memory(ctx context.Context) (total, available uint64, err error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.Total, vm.Available, nil
}

// Build describes the running platform image.
func Build(ctx context.Context) (model.Build, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return model.Build{}, err
	}
	return model.Build{
		Model:        info.Hostname,
		Manufacturer: info.Platform,
		BuildVersion: strings.TrimSpace(info.PlatformVersion + " " + info.KernelVersion),
	}, nil
}

// DetectFeatures fills host-derived keys of the feature table.
func DetectFeatures(ctx context.Context, f *native.Features) {
	if info, err := host.InfoWithContext(ctx); err == nil {
		f.Set(native.FeatureCPUArch, info.KernelArch)
	}
	if n, err := cpuCount(ctx); err == nil && n > 0 {
		f.Set(native.FeatureCPUCount, n)
	}
	batts, _ := filepath.Glob("/sys/class/power_supply/BAT*")
	f.Set(native.FeatureBattery, len(batts) > 0)
}

func connectionType(name string) string {
	switch {
	case strings.HasPrefix(name, "wl"):
		return native.ConnectionWifi
	case strings.HasPrefix(name, "wwan") || strings.HasPrefix(name, "rmnet"):
		return native.ConnectionCellular
	case strings.HasPrefix(name, "bnep"):
		return native.ConnectionBluetooth
	case strings.HasPrefix(name, "eth") || strings.HasPrefix(name, "en"):
		return native.ConnectionEthernet
	}
	return native.ConnectionNone
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// Network derives the connection state from the host interfaces. The first
// interface that is up, not loopback and carries an IPv4 address wins.
func Network(ctx context.Context) (native.ConnectionState, error) {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return native.ConnectionState{}, err
	}
	st := native.ConnectionState{Type: native.ConnectionNone, WifiStatus: "OFF"}
	for _, ifc := range ifaces {
		if hasFlag(ifc.Flags, "loopback") || !hasFlag(ifc.Flags, "up") {
			continue
		}
		st.Interfaces = append(st.Interfaces, ifc.Name)
		typ := connectionType(ifc.Name)
		if typ == native.ConnectionWifi {
			st.WifiStatus = "ON"
		}
		if st.IPAddress != "" {
			continue
		}
		for _, a := range ifc.Addrs {
			ip := strings.SplitN(a.Addr, "/", 2)[0]
			if strings.Contains(ip, ":") {
				if st.IPv6 == "" {
					st.IPv6 = ip
				}
				continue
			}
			st.Type = typ
			st.IPAddress = ip
			break
		}
	}
	return st, nil
}
