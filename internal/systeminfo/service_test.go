package systeminfo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
	"github.com/Dicklesworthstone/wrt_device_api/internal/loop"
	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

// fakeSource serves a settable snapshot and exposes its change callback.
type fakeSource struct {
	mu      sync.Mutex
	prop    model.Property
	err     error
	changed func()
	starts  int
	stops   int
}

func (f *fakeSource) set(p model.Property) {
	f.mu.Lock()
	f.prop = p
	f.mu.Unlock()
}

func (f *fakeSource) fire() {
	f.mu.Lock()
	changed := f.changed
	f.mu.Unlock()
	if changed != nil {
		changed()
	}
}

func (f *fakeSource) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func (f *fakeSource) source() Source {
	return Source{
		Supported: true,
		Fetch: func(context.Context) (model.Property, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.prop, f.err
		},
		Watch: func(changed func()) func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.starts++
			f.changed = changed
			return func() {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.stops++
				f.changed = nil
			}
		},
	}
}

// recorder collects deliveries made on a loop context.
type recorder struct {
	mu    sync.Mutex
	props []model.Property
	errs  []error
}

func (r *recorder) success(p model.Property) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.props = append(r.props, p)
}

func (r *recorder) failure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) got() ([]model.Property, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Property(nil), r.props...), append([]error(nil), r.errs...)
}

func newContext(t *testing.T) *loop.Context {
	t.Helper()
	ctx := loop.New(nil)
	t.Cleanup(ctx.Close)
	return ctx
}

func newService(t *testing.T, p Platform) *Service {
	t.Helper()
	s := New(Config{Platform: p})
	t.Cleanup(s.Close)
	return s
}

func TestThresholdFiltersCPUBroadcasts(t *testing.T) {
	cpu := &fakeSource{prop: model.CPU{Load: 10}}
	s := newService(t, Platform{model.KindCPU: cpu.source()})
	ctx := newContext(t)

	var rec recorder
	var opts Options
	opts.HighThreshold.Set(80)
	opts.LowThreshold.Set(0)
	_, err := s.AddPropertyValueChangeListener(ctx, "CPU", rec.success, opts, rec.failure)
	require.NoError(t, err)

	cpu.set(model.CPU{Load: 50})
	cpu.fire()
	ctx.Flush()
	props, _ := rec.got()
	assert.Empty(t, props)

	cpu.set(model.CPU{Load: 85})
	cpu.fire()
	ctx.Flush()
	props, errList := rec.got()
	require.Len(t, props, 1)
	assert.Equal(t, 85.0, props[0].(model.CPU).Load)
	assert.Empty(t, errList)
}

func TestListenerWithoutThresholdReceivesEveryChange(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 40}}
	s := newService(t, Platform{model.KindBattery: bat.source()})
	ctx := newContext(t)

	var rec recorder
	_, err := s.AddPropertyValueChangeListener(ctx, "battery", rec.success, Options{}, nil)
	require.NoError(t, err)

	bat.fire()
	bat.set(model.Battery{Level: 39})
	bat.fire()
	ctx.Flush()
	props, _ := rec.got()
	assert.Equal(t, []model.Property{model.Battery{Level: 40}, model.Battery{Level: 39}}, props)
}

func TestLowThresholdOnly(t *testing.T) {
	var opts Options
	opts.LowThreshold.Set(15)
	w := &watch{opts: opts}
	assert.True(t, w.accepts(model.Battery{Level: 15}))
	assert.True(t, w.accepts(model.Battery{Level: 3}))
	assert.False(t, w.accepts(model.Battery{Level: 16}))
	assert.True(t, w.accepts(model.Locale{Language: "en_US"}))
}

func TestSubscriptionIsRefcounted(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 50}}
	s := newService(t, Platform{model.KindBattery: bat.source()})
	ctx := newContext(t)

	var rec recorder
	first, err := s.AddPropertyValueChangeListener(ctx, "BATTERY", rec.success, Options{}, nil)
	require.NoError(t, err)
	second, err := s.AddPropertyValueChangeListener(ctx, "BATTERY", rec.success, Options{}, nil)
	require.NoError(t, err)

	starts, stops := bat.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	require.NoError(t, s.RemovePropertyValueChangeListener(ctx, first))
	starts, stops = bat.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	require.NoError(t, s.RemovePropertyValueChangeListener(ctx, second))
	starts, stops = bat.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)

	_, err = s.AddPropertyValueChangeListener(ctx, "BATTERY", rec.success, Options{}, nil)
	require.NoError(t, err)
	starts, _ = bat.counts()
	assert.Equal(t, 2, starts)
}

func TestCrossContextRemovalRejected(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 50}}
	s := newService(t, Platform{model.KindBattery: bat.source()})
	a, b := newContext(t), newContext(t)

	var rec recorder
	id, err := s.AddPropertyValueChangeListener(a, "BATTERY", rec.success, Options{}, nil)
	require.NoError(t, err)

	err = s.RemovePropertyValueChangeListener(b, id)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidValues))
	assert.True(t, s.registered(id))

	bat.fire()
	a.Flush()
	props, _ := rec.got()
	assert.Len(t, props, 1)

	require.NoError(t, s.RemovePropertyValueChangeListener(a, id))
}

func TestRemoveUnknownListener(t *testing.T) {
	s := newService(t, Platform{})
	err := s.RemovePropertyValueChangeListener(newContext(t), 987654)
	assert.True(t, errs.Is(err, errs.InvalidValues))
}

func TestStorageBroadcastIsIdempotent(t *testing.T) {
	snap := model.Storage{Units: []model.StorageUnit{{Type: "INTERNAL", Path: "/", Capacity: 100, AvailableCapacity: 40}}}
	st := &fakeSource{prop: snap}
	s := newService(t, Platform{model.KindStorage: st.source()})
	ctx := newContext(t)

	var rec recorder
	_, err := s.AddPropertyValueChangeListener(ctx, "STORAGE", rec.success, Options{}, nil)
	require.NoError(t, err)

	st.fire()
	st.set(model.Storage{Units: append([]model.StorageUnit(nil), snap.Units...)})
	st.fire()
	ctx.Flush()
	props, _ := rec.got()
	assert.Len(t, props, 1)

	changed := model.Storage{Units: []model.StorageUnit{{Type: "INTERNAL", Path: "/", Capacity: 100, AvailableCapacity: 39}}}
	st.set(changed)
	st.fire()
	ctx.Flush()
	props, _ = rec.got()
	require.Len(t, props, 2)
	assert.Equal(t, changed, props[1])
}

func TestCPUSuppressesRepeatedLoad(t *testing.T) {
	cpu := &fakeSource{prop: model.CPU{Load: 30}}
	s := newService(t, Platform{model.KindCPU: cpu.source()})
	ctx := newContext(t)

	var rec recorder
	_, err := s.AddPropertyValueChangeListener(ctx, "CPU", rec.success, Options{}, nil)
	require.NoError(t, err)

	cpu.fire()
	cpu.fire()
	cpu.set(model.CPU{Load: 31})
	cpu.fire()
	ctx.Flush()
	props, _ := rec.got()
	assert.Len(t, props, 2)
}

func TestTimeoutUnregistersListener(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 50}}
	s := newService(t, Platform{model.KindBattery: bat.source()})
	ctx := newContext(t)

	var rec recorder
	var opts Options
	opts.Timeout.Set(50 * time.Millisecond)
	id, err := s.AddPropertyValueChangeListener(ctx, "BATTERY", rec.success, opts, nil)
	require.NoError(t, err)
	assert.True(t, s.registered(id))

	require.Eventually(t, func() bool { return !s.registered(id) }, 2*time.Second, 10*time.Millisecond)
	_, stops := bat.counts()
	assert.Equal(t, 1, stops)

	err = s.RemovePropertyValueChangeListener(ctx, id)
	assert.True(t, errs.Is(err, errs.InvalidValues))
}

func TestInvalidTimeout(t *testing.T) {
	s := newService(t, Platform{})
	var opts Options
	opts.Timeout.Set(0)
	_, err := s.AddPropertyValueChangeListener(newContext(t), "BATTERY", func(model.Property) {}, opts, nil)
	assert.True(t, errs.Is(err, errs.InvalidValues))
}

func TestUnsupportedKindGoesInactive(t *testing.T) {
	wifi := &fakeSource{prop: model.WifiNetwork{}}
	src := wifi.source()
	src.Supported = false
	s := newService(t, Platform{model.KindWifiNetwork: src})
	ctx := newContext(t)

	var rec recorder
	id, err := s.AddPropertyValueChangeListener(ctx, "WIFI_NETWORK", rec.success, Options{}, rec.failure)
	require.NoError(t, err)
	assert.NotZero(t, id)

	ctx.Flush()
	props, errList := rec.got()
	assert.Empty(t, props)
	require.Len(t, errList, 1)
	assert.True(t, errs.Is(errList[0], errs.NotSupported))

	starts, _ := wifi.counts()
	assert.Zero(t, starts)
	assert.Equal(t, 1, s.Listeners(model.KindWifiNetwork))
	require.NoError(t, s.RemovePropertyValueChangeListener(ctx, id))
	assert.Zero(t, s.Listeners(model.KindWifiNetwork))
}

func TestListenerIDsIncrease(t *testing.T) {
	s := newService(t, Platform{model.KindBattery: (&fakeSource{}).source()})
	ctx := newContext(t)
	var prev ListenerID
	for i := 0; i < 5; i++ {
		id, err := s.AddPropertyValueChangeListener(ctx, "BATTERY", func(model.Property) {}, Options{}, nil)
		require.NoError(t, err)
		assert.Greater(t, uint64(id), uint64(prev))
		prev = id
		if i%2 == 0 {
			require.NoError(t, s.RemovePropertyValueChangeListener(ctx, id))
		}
	}
}

func TestAddRejectsBadArguments(t *testing.T) {
	s := newService(t, Platform{})
	ctx := newContext(t)

	_, err := s.AddPropertyValueChangeListener(ctx, "BATTERY", nil, Options{}, nil)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
	_, err = s.AddPropertyValueChangeListener(ctx, "TEMPERATURE", func(model.Property) {}, Options{}, nil)
	assert.True(t, errs.Is(err, errs.InvalidArgument))

	closed := loop.New(nil)
	closed.Close()
	_, err = s.AddPropertyValueChangeListener(closed, "BATTERY", func(model.Property) {}, Options{}, nil)
	assert.True(t, errs.Is(err, errs.WrongState))
}

func TestContextCloseRemovesListeners(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 50}}
	s := newService(t, Platform{model.KindBattery: bat.source()})
	ctx := loop.New(nil)

	var rec recorder
	id, err := s.AddPropertyValueChangeListener(ctx, "BATTERY", rec.success, Options{}, nil)
	require.NoError(t, err)

	ctx.Close()
	assert.False(t, s.registered(id))
	_, stops := bat.counts()
	assert.Equal(t, 1, stops)

	bat.fire()
	props, _ := rec.got()
	assert.Empty(t, props)
}

func TestAddRacingContextCloseLeavesNoListener(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 50}}
	s := newService(t, Platform{model.KindBattery: bat.source()})

	for i := 0; i < 100; i++ {
		ctx := loop.New(nil)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = s.AddPropertyValueChangeListener(ctx, "BATTERY", func(model.Property) {}, Options{}, nil)
		}()
		ctx.Close()
		<-done
		require.Equal(t, 0, s.Listeners(model.KindBattery), "iteration %d", i)
	}
	starts, stops := bat.counts()
	assert.Equal(t, starts, stops)
}

func TestDeliveryAfterRemovalIsDropped(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 50}}
	s := newService(t, Platform{model.KindBattery: bat.source()})
	ctx := newContext(t)

	block := make(chan struct{})
	ctx.Post(func() { <-block })

	var rec recorder
	id, err := s.AddPropertyValueChangeListener(ctx, "BATTERY", rec.success, Options{}, nil)
	require.NoError(t, err)
	bat.fire()
	require.NoError(t, s.RemovePropertyValueChangeListener(ctx, id))
	close(block)
	ctx.Flush()

	props, _ := rec.got()
	assert.Empty(t, props)
}

func TestGetPropertyValue(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 64, IsCharging: true}}
	s := newService(t, Platform{model.KindBattery: bat.source()})
	ctx := newContext(t)

	var rec recorder
	require.NoError(t, s.GetPropertyValue(ctx, "BATTERY", rec.success, rec.failure))
	require.Eventually(t, func() bool {
		props, _ := rec.got()
		return len(props) == 1
	}, 2*time.Second, 5*time.Millisecond)
	props, errList := rec.got()
	assert.Equal(t, model.Battery{Level: 64, IsCharging: true}, props[0])
	assert.Empty(t, errList)
}

func TestGetPropertyValueErrors(t *testing.T) {
	broken := &fakeSource{err: errors.New("vconf down")}
	unsupported := (&fakeSource{}).source()
	unsupported.Supported = false
	s := newService(t, Platform{model.KindBattery: broken.source(), model.KindSIM: unsupported})
	ctx := newContext(t)

	var rec recorder
	require.NoError(t, s.GetPropertyValue(ctx, "BATTERY", rec.success, rec.failure))
	require.NoError(t, s.GetPropertyValue(ctx, "SIM", rec.success, rec.failure))
	require.Eventually(t, func() bool {
		_, errList := rec.got()
		return len(errList) == 2
	}, 2*time.Second, 5*time.Millisecond)

	props, errList := rec.got()
	assert.Empty(t, props)
	kinds := []errs.Kind{errs.KindOf(errList[0]), errs.KindOf(errList[1])}
	assert.ElementsMatch(t, []errs.Kind{errs.Platform, errs.NotSupported}, kinds)

	assert.True(t, errs.Is(s.GetPropertyValue(ctx, "BATTERY", nil, nil), errs.InvalidArgument))
	assert.True(t, errs.Is(s.GetPropertyValue(ctx, "NOPE", rec.success, nil), errs.InvalidArgument))
}

func TestFetchPoolSerializesQueries(t *testing.T) {
	var running, peak atomic.Int32
	slow := Source{
		Supported: true,
		Fetch: func(context.Context) (model.Property, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return model.Build{Model: "tm1"}, nil
		},
	}
	s := newService(t, Platform{model.KindBuild: slow})
	ctx := newContext(t)

	var rec recorder
	for i := 0; i < 6; i++ {
		require.NoError(t, s.GetPropertyValue(ctx, "BUILD", rec.success, rec.failure))
	}
	require.Eventually(t, func() bool {
		props, _ := rec.got()
		return len(props) == 6
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), peak.Load())
}

func TestGetCount(t *testing.T) {
	units := model.Storage{Units: []model.StorageUnit{{Path: "/"}, {Path: "/media/card"}}}
	storage := Source{
		Supported: true,
		Count:     func(context.Context) (int, error) { return len(units.Units), nil },
	}
	s := newService(t, Platform{model.KindStorage: storage, model.KindBattery: (&fakeSource{}).source()})

	n, err := s.GetCount("STORAGE")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.GetCount("BATTERY")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.GetCount("SIM")
	assert.True(t, errs.Is(err, errs.NotSupported))
}

func TestCapabilities(t *testing.T) {
	s := New(Config{Features: native.MobileProfile()})
	defer s.Close()

	v, err := s.GetCapability(native.FeatureWifi)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = s.GetCapability(native.FeatureScreenWidth)
	require.NoError(t, err)
	assert.Equal(t, 720, v)

	_, err = s.GetCapability("tizen.org/feature/teleport")
	assert.True(t, errs.Is(err, errs.NotFound))
	_, err = s.GetCapability("")
	assert.True(t, errs.Is(err, errs.InvalidArgument))

	assert.Equal(t, native.MobileProfile().All(), s.GetCapabilities())
}

func TestCloseTearsEverythingDown(t *testing.T) {
	bat := &fakeSource{prop: model.Battery{Level: 50}}
	s := New(Config{Platform: Platform{model.KindBattery: bat.source()}})
	ctx := newContext(t)

	var opts Options
	opts.Timeout.Set(time.Hour)
	id, err := s.AddPropertyValueChangeListener(ctx, "BATTERY", func(model.Property) {}, opts, nil)
	require.NoError(t, err)

	s.Close()
	assert.False(t, s.registered(id))
	_, stops := bat.counts()
	assert.Equal(t, 1, stops)

	_, err = s.AddPropertyValueChangeListener(ctx, "BATTERY", func(model.Property) {}, Options{}, nil)
	assert.True(t, errs.Is(err, errs.WrongState))
	assert.True(t, errs.Is(s.GetPropertyValue(ctx, "BATTERY", func(model.Property) {}, nil), errs.WrongState))
	s.Close()
}
