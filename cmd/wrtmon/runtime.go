package main

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dicklesworthstone/wrt_device_api/internal/config"
	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
	"github.com/Dicklesworthstone/wrt_device_api/internal/loop"
	"github.com/Dicklesworthstone/wrt_device_api/internal/messageport"
	"github.com/Dicklesworthstone/wrt_device_api/internal/metrics"
	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
	"github.com/Dicklesworthstone/wrt_device_api/internal/sampler"
	"github.com/Dicklesworthstone/wrt_device_api/internal/systeminfo"
	"github.com/Dicklesworthstone/wrt_device_api/internal/ui"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	monitorPort = "wrtmon"
	probeAppID  = "org.tizen.wrtmon.probe"
)

// runtime is one assembled device API host.
type runtime struct {
	appID    string
	log      *logging.Logger
	features *native.Features
	vconf    *native.Vconf
	conn     *native.Connection
	feeder   *sampler.Feeder
	info     *systeminfo.Service
	bus      *native.Bus
	ports    *messageport.Manager
	loop     *loop.Context
	registry *prometheus.Registry
}

func newRuntime(ctx context.Context, cfg config.Config, log *logging.Logger) *runtime {
	features := native.MobileProfile()
	sampler.DetectFeatures(ctx, features)
	cfg.ApplyFeatures(features)

	vc := native.NewVconf()
	seedLocale(vc)
	vc.SetInt(native.KeySIMSlot, systeminfo.SIMSlotNotPresent)
	vc.SetInt(native.KeyLowMemory, native.LowMemoryNormal)
	conn := native.NewConnection()

	feeder := sampler.NewFeeder(cfg.Interval, vc, conn, log)
	feeder.Battery = cfg.EnableBatt
	feeder.Feed(ctx)

	platform := systeminfo.DefaultPlatform(systeminfo.Devices{
		Vconf:        vc,
		Features:     features,
		Sensors:      native.NewSensorHub(),
		Connection:   conn,
		Telephony:    native.NewTapiService(nil),
		CPU:          sampler.NewCPUSampler(nil),
		Storage:      sampler.Storage,
		Memory:       sampler.Memory,
		Build:        sampler.Build,
		PollInterval: cfg.Interval,
		Log:          log,
	})
	bus := native.NewBus(log)
	registry := prometheus.NewRegistry()
	mm := metrics.New(registry)
	return &runtime{
		appID:    cfg.AppID,
		log:      log,
		features: features,
		vconf:    vc,
		conn:     conn,
		feeder:   feeder,
		info: systeminfo.New(systeminfo.Config{
			Platform:     platform,
			Features:     features,
			Log:          log,
			Metrics:      mm,
			FetchWorkers: cfg.FetchWorkers,
		}),
		bus:      bus,
		ports:    messageport.NewManager(bus.Client(cfg.AppID, uuid.NewString()), log).WithMetrics(mm),
		loop:     loop.New(log),
		registry: registry,
	}
}

// seedLocale derives the locale keys from the process environment.
func seedLocale(vc *native.Vconf) {
	lang := os.Getenv("LANG")
	if lang == "" || lang == "C" || lang == "POSIX" {
		lang = "en_US.UTF-8"
	}
	vc.SetString(native.KeyLanguage, lang)
	region := os.Getenv("LC_ALL")
	if region == "" {
		region = lang
	}
	vc.SetString(native.KeyRegion, region)
}

func (rt *runtime) close() {
	rt.loop.Close()
	rt.info.Close()
	if err := rt.ports.Close(); err != nil {
		rt.log.Warnf("wrtmon: closing message ports: %v", err)
	}
}

// announce opens the monitor's message port, routes incoming messages to the
// board and has a probe application say hello through it.
func (rt *runtime) announce(board *ui.Board) error {
	local, err := rt.ports.RequestLocalMessagePort(monitorPort)
	if err != nil {
		return err
	}
	_, err = local.AddMessagePortListener(rt.loop, func(msg messageport.Message) {
		from := "unknown"
		if msg.Remote != nil {
			from = msg.Remote.AppID()
		}
		text, _ := msg.Get("text")
		board.Note("message from %s: %s", from, text)
	})
	if err != nil {
		return err
	}

	probe := messageport.NewManager(rt.bus.Client(probeAppID, uuid.NewString()), rt.log)
	reply, err := probe.RequestLocalMessagePort(monitorPort)
	if err != nil {
		return err
	}
	target, err := probe.RequestRemoteMessagePort(rt.appID, monitorPort)
	if err != nil {
		return err
	}
	return target.SendMessage([]messageport.DataItem{{Key: "text", Value: "monitor online"}}, reply)
}

type record struct {
	Timestamp time.Time      `json:"ts"`
	Property  string         `json:"property"`
	Value     model.Property `json:"value,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// collect reads every kind once and returns the results in kind order.
func collect(info *systeminfo.Service, timeout time.Duration) []record {
	kinds := model.Kinds()
	out := make([]record, len(kinds))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i, kind := range kinds {
		i, kind := i, kind
		out[i] = record{Property: kind.String()}
		wg.Add(1)
		var once sync.Once
		finish := func(p model.Property, err error) {
			once.Do(func() {
				mu.Lock()
				defer mu.Unlock()
				out[i].Timestamp = time.Now()
				out[i].Value = p
				if err != nil {
					out[i].Error = err.Error()
				}
				wg.Done()
			})
		}
		err := info.GetPropertyValue(nil, kind.String(),
			func(p model.Property) { finish(p, nil) },
			func(err error) { finish(nil, err) })
		if err != nil {
			finish(nil, err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
	mu.Lock()
	defer mu.Unlock()
	return append([]record(nil), out...)
}

func writeJSON(w io.Writer, info *systeminfo.Service, timeout time.Duration) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(collect(info, timeout))
}

// stream writes one NDJSON record per delivered change until ctx is done.
func (rt *runtime) stream(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	var mu sync.Mutex
	emit := func(rec record) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(rec); err != nil {
			rt.log.Errorf("wrtmon: write record: %v", err)
		}
	}
	for _, kind := range model.Kinds() {
		name := kind.String()
		onValue := func(p model.Property) { emit(record{Timestamp: time.Now(), Property: name, Value: p}) }
		onError := func(err error) {
			emit(record{Timestamp: time.Now(), Property: name, Error: err.Error()})
		}
		if err := rt.info.GetPropertyValue(rt.loop, name, onValue, onError); err != nil {
			return err
		}
		if _, err := rt.info.AddPropertyValueChangeListener(rt.loop, name, onValue, systeminfo.Options{}, func(error) {}); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func watchedKinds(features *native.Features) []model.Kind {
	kinds := model.Kinds()
	if !features.Bool(native.FeatureTelephony) {
		out := kinds[:0]
		for _, k := range kinds {
			if k != model.KindSIM && k != model.KindCellularNetwork {
				out = append(out, k)
			}
		}
		kinds = out
	}
	return kinds
}

func profileName(f *native.Features) string {
	v, _ := f.Lookup(native.FeatureProfile)
	s, _ := v.(string)
	return strings.ToLower(s)
}
