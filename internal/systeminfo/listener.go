package systeminfo

import (
	"sync/atomic"
	"time"

	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
	"github.com/Dicklesworthstone/wrt_device_api/internal/event"
	"github.com/Dicklesworthstone/wrt_device_api/internal/loop"
	"github.com/Dicklesworthstone/wrt_device_api/internal/metrics"
	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
)

// ListenerID identifies one change listener. Ids are unique for the lifetime
// of the process.
type ListenerID uint64

var lastListenerID atomic.Uint64

func nextListenerID() ListenerID { return ListenerID(lastListenerID.Add(1)) }

// Options tunes a change listener. Thresholds apply to battery level, CPU
// load and display brightness, all in percent.
type Options struct {
	Timeout       event.Field[time.Duration]
	HighThreshold event.Field[float64]
	LowThreshold  event.Field[float64]
}

type watch struct {
	id        ListenerID
	kind      model.Kind
	ctx       *loop.Context
	onSuccess SuccessFunc
	onError   ErrorFunc
	opts      Options
	active    atomic.Bool
	timer     *time.Timer
	detach    func()
}

// accepts applies the threshold options to a snapshot.
func (w *watch) accepts(prop model.Property) bool {
	value, ok := thresholdValue(prop)
	if !ok {
		return true
	}
	high, low := w.opts.HighThreshold, w.opts.LowThreshold
	if !high.IsSet() && !low.IsSet() {
		return true
	}
	return (high.IsSet() && value >= high.Get()) || (low.IsSet() && value <= low.Get())
}

func thresholdValue(prop model.Property) (float64, bool) {
	switch p := prop.(type) {
	case model.Battery:
		return p.Level, true
	case model.CPU:
		return p.Load, true
	case model.Display:
		return p.Brightness, true
	}
	return 0, false
}

// subscription is the shared native change source of one kind. It is
// started by the first reference and stopped when the last one goes away.
type subscription struct {
	watch   WatchFunc
	changed func()
	refs    int
	stop    func()
}

func (s *subscription) acquire() {
	s.refs++
	if s.refs == 1 && s.watch != nil {
		s.stop = s.watch(s.changed)
	}
}

// release reports whether the source was torn down.
func (s *subscription) release() bool {
	if s.refs == 0 {
		return false
	}
	s.refs--
	if s.refs > 0 {
		return false
	}
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	return true
}

type collection struct {
	watches map[ListenerID]*watch
	sub     *subscription
}

// AddPropertyValueChangeListener registers onSuccess for changes of the
// property. Results are delivered on ctx. An unsupported property still
// yields a listener id; onError then receives one not-supported error.
func (s *Service) AddPropertyValueChangeListener(ctx *loop.Context, id string, onSuccess SuccessFunc, opts Options, onError ErrorFunc) (ListenerID, error) {
	if onSuccess == nil {
		return 0, errs.New(errs.InvalidArgument, "success callback is required")
	}
	kind, src, err := s.source(id)
	if err != nil {
		return 0, err
	}
	if opts.Timeout.IsSet() && opts.Timeout.Get() <= 0 {
		return 0, errs.New(errs.InvalidValues, "timeout must be positive")
	}

	w := &watch{
		id:        nextListenerID(),
		kind:      kind,
		ctx:       ctx,
		onSuccess: onSuccess,
		onError:   onError,
		opts:      opts,
	}
	w.active.Store(true)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errs.New(errs.WrongState, "system info service is closed")
	}
	if ctx != nil {
		// The hook blocks on s.mu until w is registered below.
		detach, ok := ctx.OnClose(func() { _ = s.remove(nil, w.id, true) })
		if !ok {
			s.mu.Unlock()
			return 0, errs.New(errs.WrongState, "context is closed")
		}
		w.detach = detach
	}
	if opts.Timeout.IsSet() {
		w.timer = time.AfterFunc(opts.Timeout.Get(), func() { s.expire(w.id) })
	}
	s.metrics.ListenerAdded(kind.String())
	coll := s.kinds[kind]
	if !src.Supported || coll == nil {
		s.inactive[w.id] = w
		s.mu.Unlock()
		s.log.Debugf("systeminfo: listener %d on unsupported %s", w.id, kind)
		post(ctx, func() { fail(onError, errs.New(errs.NotSupported, "%s is not supported", kind)) })
		return w.id, nil
	}
	coll.watches[w.id] = w
	coll.sub.acquire()
	if coll.sub.refs == 1 {
		s.log.Debugf("systeminfo: subscribed to %s changes", kind)
	}
	s.mu.Unlock()
	return w.id, nil
}

// RemovePropertyValueChangeListener removes a listener. ctx must be the
// context the listener was registered under.
func (s *Service) RemovePropertyValueChangeListener(ctx *loop.Context, id ListenerID) error {
	return s.remove(ctx, id, false)
}

func (s *Service) expire(id ListenerID) {
	if err := s.remove(nil, id, true); err == nil {
		s.log.Infof("systeminfo: listener %d expired", id)
	}
}

// remove is shared by explicit removal and the internal paths (timeout,
// context teardown, Close), which skip the owner check.
func (s *Service) remove(ctx *loop.Context, id ListenerID, internal bool) error {
	s.mu.Lock()
	w, coll := s.lookup(id)
	if w == nil {
		s.mu.Unlock()
		return errs.New(errs.InvalidValues, "listener %d not found", id)
	}
	if !internal && ctx != w.ctx {
		s.mu.Unlock()
		return errs.New(errs.InvalidValues, "listener %d belongs to another context", id)
	}
	w.active.Store(false)
	s.metrics.ListenerRemoved(w.kind.String())
	if coll == nil {
		delete(s.inactive, id)
	} else {
		delete(coll.watches, id)
		if coll.sub.release() {
			delete(s.last, w.kind)
			s.log.Debugf("systeminfo: unsubscribed from %s changes", w.kind)
		}
	}
	s.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	if w.detach != nil {
		w.detach()
	}
	return nil
}

// lookup finds a listener; coll is nil for inactive listeners.
func (s *Service) lookup(id ListenerID) (*watch, *collection) {
	if w, ok := s.inactive[id]; ok {
		return w, nil
	}
	for _, c := range s.kinds {
		if w, ok := c.watches[id]; ok {
			return w, c
		}
	}
	return nil, nil
}

func (s *Service) registered(id ListenerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, _ := s.lookup(id)
	return w != nil
}

// Listeners returns the number of active listeners for a kind.
func (s *Service) Listeners(kind model.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	if c := s.kinds[kind]; c != nil {
		n = len(c.watches)
	}
	for _, w := range s.inactive {
		if w.kind == kind {
			n++
		}
	}
	return n
}

// broadcast is the change callback of every native source. It builds one
// snapshot and posts it to each listener whose options accept it.
func (s *Service) broadcast(kind model.Kind) {
	prop, err := s.fetch(s.runCtx, kind, s.sources[kind])
	if err != nil {
		s.log.Warnf("systeminfo: %s changed but could not be read: %v", kind, err)
		return
	}

	s.mu.Lock()
	coll := s.kinds[kind]
	if coll == nil || len(coll.watches) == 0 {
		s.mu.Unlock()
		return
	}
	if s.redundant(kind, prop) {
		s.metrics.Broadcast(kind.String(), metrics.Suppressed, len(coll.watches))
		s.mu.Unlock()
		return
	}
	targets := make([]*watch, 0, len(coll.watches))
	for _, w := range coll.watches {
		if w.accepts(prop) {
			targets = append(targets, w)
		}
	}
	s.metrics.Broadcast(kind.String(), metrics.Filtered, len(coll.watches)-len(targets))
	s.metrics.Broadcast(kind.String(), metrics.Delivered, len(targets))
	s.mu.Unlock()

	for _, w := range targets {
		w := w
		post(w.ctx, func() {
			if w.active.Load() {
				w.onSuccess(prop)
			}
		})
	}
}

// redundant records prop as the last snapshot of kind and reports whether
// it repeats the previous one. Only storage contents and CPU load are
// compared; other kinds always broadcast.
func (s *Service) redundant(kind model.Kind, prop model.Property) bool {
	prev, seen := s.last[kind]
	s.last[kind] = prop
	if !seen {
		return false
	}
	switch p := prop.(type) {
	case model.Storage:
		if q, ok := prev.(model.Storage); ok {
			return p.Equal(q)
		}
	case model.CPU:
		if q, ok := prev.(model.CPU); ok {
			return p.Load == q.Load
		}
	}
	return false
}
