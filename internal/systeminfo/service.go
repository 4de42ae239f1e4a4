// Package systeminfo implements the property-watcher pipeline: one-off
// property fetches on a bounded worker pool, persistent change listeners
// with threshold and timeout options, refcounted native subscriptions, and
// delivery of every result on the caller's loop context.
package systeminfo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
	"github.com/Dicklesworthstone/wrt_device_api/internal/loop"
	"github.com/Dicklesworthstone/wrt_device_api/internal/metrics"
	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

// SuccessFunc receives a property snapshot.
type SuccessFunc func(model.Property)

// ErrorFunc receives an asynchronous failure.
type ErrorFunc func(error)

// Config assembles a Service.
type Config struct {
	Platform Platform
	Features *native.Features
	Log      *logging.Logger
	Metrics  *metrics.Metrics

	// FetchWorkers bounds concurrent platform queries. Zero means one.
	FetchWorkers int
}

// Service is the SystemInfo entry point of one runtime.
type Service struct {
	sources  Platform
	features *native.Features
	log      *logging.Logger
	metrics  *metrics.Metrics
	pool     *semaphore.Weighted

	runCtx context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	kinds    map[model.Kind]*collection
	inactive map[ListenerID]*watch
	last     map[model.Kind]model.Property
}

func New(cfg Config) *Service {
	workers := cfg.FetchWorkers
	if workers <= 0 {
		workers = 1
	}
	features := cfg.Features
	if features == nil {
		features = native.NewFeatures(nil)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		sources:  cfg.Platform,
		features: features,
		log:      cfg.Log,
		metrics:  cfg.Metrics,
		pool:     semaphore.NewWeighted(int64(workers)),
		runCtx:   runCtx,
		cancel:   cancel,
		kinds:    make(map[model.Kind]*collection),
		inactive: make(map[ListenerID]*watch),
		last:     make(map[model.Kind]model.Property),
	}
	for kind, src := range cfg.Platform {
		if !src.Supported {
			continue
		}
		kind := kind
		s.kinds[kind] = &collection{
			watches: make(map[ListenerID]*watch),
			sub:     &subscription{watch: src.Watch, changed: func() { s.broadcast(kind) }},
		}
	}
	return s
}

func (s *Service) source(id string) (model.Kind, Source, error) {
	kind, ok := model.ParseKind(id)
	if !ok {
		return 0, Source{}, errs.New(errs.InvalidArgument, "unknown property %q", id)
	}
	return kind, s.sources[kind], nil
}

// fetch runs one platform query on the pool.
func (s *Service) fetch(ctx context.Context, kind model.Kind, src Source) (model.Property, error) {
	if src.Fetch == nil {
		return nil, errs.New(errs.NotSupported, "%s cannot be read", kind)
	}
	if err := s.pool.Acquire(ctx, 1); err != nil {
		return nil, errs.Wrap(err, errs.WrongState, "fetch %s", kind)
	}
	defer s.pool.Release(1)
	start := time.Now()
	prop, err := src.Fetch(ctx)
	s.metrics.Fetched(kind.String(), time.Since(start), err)
	if err != nil {
		if errs.KindOf(err) == errs.Unknown {
			return nil, errs.Wrap(err, errs.Platform, "fetch %s", kind)
		}
		return nil, err
	}
	return prop, nil
}

// GetPropertyValue reads the property once. Exactly one of onSuccess and
// onError is later invoked on ctx; onError may be nil. Only malformed
// arguments fail synchronously.
func (s *Service) GetPropertyValue(ctx *loop.Context, id string, onSuccess SuccessFunc, onError ErrorFunc) error {
	if onSuccess == nil {
		return errs.New(errs.InvalidArgument, "success callback is required")
	}
	kind, src, err := s.source(id)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return errs.New(errs.WrongState, "system info service is closed")
	}
	if !src.Supported {
		post(ctx, func() { fail(onError, errs.New(errs.NotSupported, "%s is not supported", kind)) })
		return nil
	}
	go func() {
		prop, err := s.fetch(s.runCtx, kind, src)
		if err != nil {
			s.log.Debugf("systeminfo: fetch %s failed: %v", kind, err)
			post(ctx, func() { fail(onError, err) })
			return
		}
		post(ctx, func() { onSuccess(prop) })
	}()
	return nil
}

// GetCount returns the number of units of a property, e.g. mounted storage
// devices. Kinds with a single unit report one.
func (s *Service) GetCount(id string) (int, error) {
	kind, src, err := s.source(id)
	if err != nil {
		return 0, err
	}
	if !src.Supported {
		return 0, errs.New(errs.NotSupported, "%s is not supported", kind)
	}
	if src.Count == nil {
		return 1, nil
	}
	if err := s.pool.Acquire(s.runCtx, 1); err != nil {
		return 0, errs.Wrap(err, errs.WrongState, "count %s", kind)
	}
	defer s.pool.Release(1)
	n, err := src.Count(s.runCtx)
	if err != nil {
		return 0, errs.Wrap(err, errs.Platform, "count %s", kind)
	}
	return n, nil
}

// GetCapability looks up one platform feature key.
func (s *Service) GetCapability(key string) (interface{}, error) {
	if key == "" {
		return nil, errs.New(errs.InvalidArgument, "capability key is required")
	}
	v, ok := s.features.Lookup(key)
	if !ok {
		return nil, errs.New(errs.NotFound, "capability %q not found", key)
	}
	return v, nil
}

// GetCapabilities returns every known feature.
func (s *Service) GetCapabilities() map[string]interface{} {
	return s.features.All()
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close removes every listener, tears down native subscriptions and aborts
// pending fetches.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var ids []ListenerID
	for _, c := range s.kinds {
		for id := range c.watches {
			ids = append(ids, id)
		}
	}
	for id := range s.inactive {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.remove(nil, id, true)
	}
	s.cancel()
}

// post runs fn on ctx, or inline when ctx is nil.
func post(ctx *loop.Context, fn func()) {
	if ctx == nil {
		fn()
		return
	}
	ctx.Post(fn)
}

func fail(onError ErrorFunc, err error) {
	if onError != nil {
		onError(err)
	}
}
