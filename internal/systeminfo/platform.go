package systeminfo

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
	"github.com/Dicklesworthstone/wrt_device_api/internal/sampler"
)

// DefaultPollInterval is used for kinds without a native change source.
const DefaultPollInterval = time.Second

// SIM slot values stored under native.KeySIMSlot.
const (
	SIMSlotNotPresent = 0
	SIMSlotInserted   = 1
	SIMSlotCardError  = 2
)

// Devices are the native collaborators the default platform reads from.
// Nil host readers disable the corresponding kinds.
type Devices struct {
	Vconf      *native.Vconf
	Features   *native.Features
	Sensors    *native.SensorHub
	Connection *native.Connection
	Telephony  native.Telephony
	CPU        *sampler.CPUSampler

	Storage func(context.Context) (model.Storage, error)
	Memory  func(context.Context) (total, available uint64, err error)
	Build   func(context.Context) (model.Build, error)

	PollInterval time.Duration
	Log          *logging.Logger
}

// DefaultPlatform wires every property kind to its native source.
func DefaultPlatform(d Devices) Platform {
	interval := d.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	features := d.Features
	if features == nil {
		features = native.NewFeatures(nil)
	}
	vc := d.Vconf
	p := Platform{}

	if vc != nil {
		p[model.KindBattery] = Source{
			Supported: features.Bool(native.FeatureBattery),
			Fetch:     func(context.Context) (model.Property, error) { return battery(vc) },
			Watch:     watchKeys(vc, native.KeyBatteryCapacity, native.KeyBatteryCharging),
		}
		p[model.KindDisplay] = Source{
			Supported: features.Bool(native.FeatureScreen),
			Fetch:     func(context.Context) (model.Property, error) { return display(vc, features) },
			Watch:     watchKeys(vc, native.KeyDisplayBrightness),
		}
		p[model.KindLocale] = Source{
			Supported: true,
			Fetch:     func(context.Context) (model.Property, error) { return locale(vc) },
			Watch:     watchKeys(vc, native.KeyLanguage, native.KeyRegion),
		}
		p[model.KindPeripheral] = Source{
			Supported: true,
			Fetch:     func(context.Context) (model.Property, error) { return peripheral(vc), nil },
			Watch:     watchKeys(vc, native.KeyHDMI, native.KeyPopSync),
		}
	}
	if d.CPU != nil {
		p[model.KindCPU] = Source{
			Supported: true,
			Fetch: func(context.Context) (model.Property, error) {
				c, err := d.CPU.Snapshot()
				return c, err
			},
			Watch: poll(interval),
		}
	}
	if d.Storage != nil {
		p[model.KindStorage] = Source{
			Supported: true,
			Fetch: func(ctx context.Context) (model.Property, error) {
				st, err := d.Storage(ctx)
				return st, err
			},
			Watch: poll(interval),
			Count: func(ctx context.Context) (int, error) {
				st, err := d.Storage(ctx)
				return len(st.Units), err
			},
		}
	}
	if d.Memory != nil {
		var watch WatchFunc
		if vc != nil {
			watch = watchKeys(vc, native.KeyLowMemory)
		}
		p[model.KindMemory] = Source{
			Supported: true,
			Fetch:     func(ctx context.Context) (model.Property, error) { return memory(ctx, d.Memory, vc) },
			Watch:     watch,
		}
	}
	if d.Build != nil {
		p[model.KindBuild] = Source{
			Supported: true,
			Fetch: func(ctx context.Context) (model.Property, error) {
				b, err := d.Build(ctx)
				return b, err
			},
		}
	}
	if d.Sensors != nil {
		hub := d.Sensors
		p[model.KindDeviceOrientation] = Source{
			Supported: features.Bool(native.FeatureAccelerometer),
			Fetch: func(context.Context) (model.Property, error) {
				ev := hub.Current()
				return model.DeviceOrientation{Status: ev.Status, IsAutoRotation: ev.AutoRotation}, nil
			},
			Watch: func(changed func()) func() {
				return hub.Register(func(native.OrientationEvent) { changed() })
			},
		}
	}
	if conn := d.Connection; conn != nil {
		onType := func(changed func()) func() { return conn.OnTypeChanged(func(string) { changed() }) }
		onIP := func(changed func()) func() { return conn.OnIPChanged(func(string) { changed() }) }
		p[model.KindNetwork] = Source{
			Supported: true,
			Fetch: func(context.Context) (model.Property, error) {
				return model.Network{NetworkType: networkType(conn.State(), vc)}, nil
			},
			Watch: onType,
			Count: func(context.Context) (int, error) { return len(conn.State().Interfaces), nil },
		}
		p[model.KindWifiNetwork] = Source{
			Supported: features.Bool(native.FeatureWifi),
			Fetch:     func(context.Context) (model.Property, error) { return wifi(conn.State()), nil },
			Watch:     combine(onType, onIP),
		}
		if vc != nil {
			radio := watchKeys(vc, native.KeyTelephonySvcType, native.KeyTelephonyRoaming,
				native.KeyTelephonyCellID, native.KeyTelephonyLAC, native.KeyFlightMode)
			p[model.KindCellularNetwork] = Source{
				Supported: features.Bool(native.FeatureTelephony),
				Fetch:     func(context.Context) (model.Property, error) { return cellular(conn.State(), vc), nil },
				Watch:     combine(onIP, radio),
			}
		}
	}
	if d.Telephony != nil && vc != nil {
		tel, log := d.Telephony, d.Log
		p[model.KindSIM] = Source{
			Supported: features.Bool(native.FeatureTelephony),
			Fetch:     func(ctx context.Context) (model.Property, error) { return sim(ctx, tel, vc, log) },
			Watch:     watchKeys(vc, native.KeySIMSlot),
		}
	}
	return p
}

func battery(vc *native.Vconf) (model.Property, error) {
	level, err := vc.GetInt(native.KeyBatteryCapacity)
	if err != nil {
		return nil, err
	}
	charging, _ := vc.GetBool(native.KeyBatteryCharging)
	return model.Battery{Level: float64(level), IsCharging: charging}, nil
}

func featureInt(f *native.Features, key string) int {
	v, _ := f.Lookup(key)
	i, _ := v.(int)
	return i
}

func display(vc *native.Vconf, f *native.Features) (model.Property, error) {
	d := model.Display{
		ResolutionWidth:   featureInt(f, native.FeatureScreenWidth),
		ResolutionHeight:  featureInt(f, native.FeatureScreenHeight),
		DotsPerInchWidth:  featureInt(f, native.FeatureScreenDPI),
		DotsPerInchHeight: featureInt(f, native.FeatureScreenDPI),
	}
	if d.DotsPerInchWidth > 0 {
		d.PhysicalWidth = float64(d.ResolutionWidth) / float64(d.DotsPerInchWidth) * 25.4
		d.PhysicalHeight = float64(d.ResolutionHeight) / float64(d.DotsPerInchHeight) * 25.4
	}
	brightness, err := vc.GetInt(native.KeyDisplayBrightness)
	if err != nil {
		return nil, err
	}
	d.Brightness = float64(brightness)
	return d, nil
}

// localeTag strips the encoding suffix, "en_US.UTF-8" becoming "en_US".
func localeTag(s string) string {
	tag, _, _ := strings.Cut(s, ".")
	return tag
}

func locale(vc *native.Vconf) (model.Property, error) {
	lang, err := vc.GetString(native.KeyLanguage)
	if err != nil {
		return nil, err
	}
	region, _ := vc.GetString(native.KeyRegion)
	return model.Locale{Language: localeTag(lang), Country: localeTag(region)}, nil
}

func peripheral(vc *native.Vconf) model.Property {
	hdmi, _ := vc.GetInt(native.KeyHDMI)
	popSync, _ := vc.GetInt(native.KeyPopSync)
	return model.Peripheral{IsVideoOutputOn: hdmi == 1 || popSync == 1}
}

func memory(ctx context.Context, read func(context.Context) (uint64, uint64, error), vc *native.Vconf) (model.Property, error) {
	total, avail, err := read(ctx)
	if err != nil {
		return nil, err
	}
	m := model.Memory{Status: "NORMAL", Total: total, Available: avail}
	if vc != nil {
		if level, err := vc.GetInt(native.KeyLowMemory); err == nil && level >= native.LowMemorySoft {
			m.Status = "WARNING"
		}
	}
	return m, nil
}

// Telephony service types stored under native.KeyTelephonySvcType.
const (
	svcTypeNone = 1
	svcType2G   = 3
	svcType25G  = 4
	svcType3G   = 5
	svcTypeHSDP = 6
	svcTypeLTE  = 7
)

func cellularGeneration(vc *native.Vconf) string {
	if vc == nil {
		return "NONE"
	}
	svc, err := vc.GetInt(native.KeyTelephonySvcType)
	if err != nil {
		return "NONE"
	}
	switch svc {
	case svcType2G:
		return "2G"
	case svcType25G:
		return "2.5G"
	case svcType3G, svcTypeHSDP:
		return "3G"
	case svcTypeLTE:
		return "4G"
	}
	return "NONE"
}

func networkType(st native.ConnectionState, vc *native.Vconf) string {
	switch st.Type {
	case native.ConnectionWifi:
		return "WIFI"
	case native.ConnectionEthernet:
		return "ETHERNET"
	case native.ConnectionCellular:
		return cellularGeneration(vc)
	}
	return "NONE"
}

func wifi(st native.ConnectionState) model.Property {
	w := model.WifiNetwork{Status: st.WifiStatus}
	if st.Type == native.ConnectionWifi {
		w.SSID = st.SSID
		w.IPAddress = st.IPAddress
		w.IPv6Address = st.IPv6
		w.SignalStrength = st.Signal
	}
	return w
}

// splitPLMN splits "45005" into MCC 450 and MNC 05.
func splitPLMN(plmn string) (mcc, mnc int) {
	if len(plmn) < 5 {
		return 0, 0
	}
	mcc, _ = strconv.Atoi(plmn[:3])
	mnc, _ = strconv.Atoi(plmn[3:])
	return mcc, mnc
}

func cellular(st native.ConnectionState, vc *native.Vconf) model.Property {
	c := model.CellularNetwork{Status: "OFF"}
	if flight, _ := vc.GetBool(native.KeyFlightMode); flight {
		c.IsFlightMode = true
	}
	if svc, _ := vc.GetInt(native.KeyTelephonySvcType); svc > svcTypeNone && !c.IsFlightMode {
		c.Status = "ON"
	}
	plmn, _ := vc.GetString(native.KeyTelephonyPLMN)
	c.MCC, c.MNC = splitPLMN(plmn)
	c.CellID, _ = vc.GetInt(native.KeyTelephonyCellID)
	c.LAC, _ = vc.GetInt(native.KeyTelephonyLAC)
	c.IsRoaming, _ = vc.GetBool(native.KeyTelephonyRoaming)
	c.IMEI, _ = vc.GetString(native.KeyTelephonyIMEI)
	if st.Type == native.ConnectionCellular {
		c.IPAddress = st.IPAddress
	}
	return c
}

var simFields = []native.SIMField{
	native.SIMICCID,
	native.SIMMSISDN,
	native.SIMSPN,
	native.SIMIMSI,
	native.SIMOperatorName,
}

// sim issues every telephony request at once. The snapshot is ready when
// the remaining counter drops to zero, i.e. after the last answer. Fields
// whose request failed stay empty.
func sim(ctx context.Context, tel native.Telephony, vc *native.Vconf, log *logging.Logger) (model.Property, error) {
	slot, _ := vc.GetInt(native.KeySIMSlot)
	switch slot {
	case SIMSlotInserted:
	case SIMSlotCardError:
		return model.SIM{State: "INVALID"}, nil
	default:
		return model.SIM{State: "ABSENT"}, nil
	}

	values := make([]string, len(simFields))
	ready := make(chan struct{})
	var remaining atomic.Int32
	remaining.Store(int32(len(simFields)))
	for i, field := range simFields {
		i, field := i, field
		tel.RequestSIM(field, func(v string, err error) {
			if err != nil {
				log.Debugf("systeminfo: sim %s: %v", field, err)
			} else {
				values[i] = v
			}
			if remaining.Add(-1) == 0 {
				close(ready)
			}
		})
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := model.SIM{
		State:        "READY",
		ICCID:        values[0],
		MSISDN:       values[1],
		SPN:          values[2],
		OperatorName: values[4],
	}
	if imsi := values[3]; len(imsi) > 5 {
		out.MCC, out.MNC = splitPLMN(imsi[:5])
		out.MSIN = imsi[5:]
	}
	return out, nil
}
