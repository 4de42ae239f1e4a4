package messageport

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
	"github.com/Dicklesworthstone/wrt_device_api/internal/event"
	"github.com/Dicklesworthstone/wrt_device_api/internal/loop"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

// WatchID identifies one listener registration. Ids are unique for the
// lifetime of the process.
type WatchID int64

const firstWatchID = 100

var lastWatchID atomic.Int64

func init() { lastWatchID.Store(firstWatchID - 1) }

func nextWatchID() WatchID { return WatchID(lastWatchID.Add(1)) }

// DataItem is one key/value entry of a message.
type DataItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Message is what a listener receives. Remote is nil for one-way sends and
// when the sender's port could not be resolved.
type Message struct {
	Data   []DataItem
	Remote *RemotePort
}

// Get returns the value stored under key.
func (m Message) Get(key string) (string, bool) {
	for _, it := range m.Data {
		if it.Key == key {
			return it.Value, true
		}
	}
	return "", false
}

// Listener is invoked for every message delivered to a local port.
type Listener func(Message)

func validateData(items []DataItem) error {
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if it.Key == "" {
			return errs.New(errs.InvalidValues, "data item %d has an empty key", i)
		}
		if _, dup := seen[it.Key]; dup {
			return errs.New(errs.InvalidValues, "duplicate key %q in message data", it.Key)
		}
		seen[it.Key] = struct{}{}
	}
	return nil
}

func toBundle(items []DataItem) native.Bundle {
	b := make(native.Bundle, len(items))
	for _, it := range items {
		b[it.Key] = it.Value
	}
	return b
}

func fromBundle(b native.Bundle) []DataItem {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]DataItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, DataItem{Key: k, Value: b[k]})
	}
	return items
}

type emitterID uint64

type listenerEntry struct {
	id      emitterID
	ctx     *loop.Context
	fn      Listener
	detachH func()
}

// emitter keeps listeners in attachment order.
type emitter struct {
	nextID    emitterID
	listeners []*listenerEntry
}

func (e *emitter) attach(ctx *loop.Context, fn Listener) *listenerEntry {
	e.nextID++
	ent := &listenerEntry{id: e.nextID, ctx: ctx, fn: fn}
	e.listeners = append(e.listeners, ent)
	return ent
}

func (e *emitter) detach(id emitterID) *listenerEntry {
	for i, ent := range e.listeners {
		if ent.id == id {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return ent
		}
	}
	return nil
}

func (e *emitter) snapshot() []*listenerEntry {
	return append([]*listenerEntry(nil), e.listeners...)
}

// LocalPort is an inbound endpoint owned by this application.
type LocalPort struct {
	id      int
	name    string
	trusted bool
	mgr     *Manager

	mu      sync.Mutex
	closed  bool
	emitter emitter
	watches map[WatchID]emitterID
}

func newLocalPort(mgr *Manager, id int, name string, trusted bool) *LocalPort {
	return &LocalPort{
		id:      id,
		name:    name,
		trusted: trusted,
		mgr:     mgr,
		watches: make(map[WatchID]emitterID),
	}
}

func (p *LocalPort) MessagePortName() string { return p.name }
func (p *LocalPort) IsTrusted() bool         { return p.trusted }
func (p *LocalPort) PlatformID() int         { return p.id }

// AddMessagePortListener attaches fn and returns its watch id. Deliveries are
// posted to ctx; with a nil ctx they run on the dispatching goroutine.
func (p *LocalPort) AddMessagePortListener(ctx *loop.Context, fn Listener) (WatchID, error) {
	req := &AddListener{Port: p, Context: ctx}
	if fn != nil {
		req.Listener.Set(fn)
	}
	p.mgr.Handle(req)
	return event.Expect(req, &req.WatchID)
}

// RemoveMessagePortListener detaches the listener registered under id.
func (p *LocalPort) RemoveMessagePortListener(id WatchID) error {
	req := &RemoveListener{Port: p}
	req.WatchID.Set(id)
	return event.Dispatch(p.mgr, req)
}

func (p *LocalPort) handleAdd(req *AddListener) {
	if !req.Listener.IsSet() {
		req.SetException(errs.InvalidArgument, "listener is required")
		return
	}
	watch := nextWatchID()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		req.SetException(errs.WrongState, "message port is closed")
		return
	}
	ent := p.emitter.attach(req.Context, req.Listener.Get())
	p.watches[watch] = ent.id
	p.mu.Unlock()
	p.mgr.metrics.PortListeners(1)

	if req.Context != nil {
		detach, ok := req.Context.OnClose(func() { _ = p.removeWatch(watch) })
		if !ok {
			p.removeWatch(watch)
			req.SetException(errs.WrongState, "context is closed")
			return
		}
		p.mu.Lock()
		ent.detachH = detach
		p.mu.Unlock()
	}

	req.WatchID.Set(watch)
	req.SetResult(true)
}

func (p *LocalPort) handleRemove(req *RemoveListener) {
	if !req.WatchID.IsSet() {
		req.SetException(errs.InvalidArgument, "watch id is required")
		return
	}
	ent := p.removeWatch(req.WatchID.Get())
	if ent == nil {
		req.SetException(errs.NotFound, "watch id not found")
		return
	}
	p.mu.Lock()
	detach := ent.detachH
	p.mu.Unlock()
	if detach != nil {
		detach()
	}
	req.SetResult(true)
}

func (p *LocalPort) removeWatch(id WatchID) *listenerEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	eid, ok := p.watches[id]
	if !ok {
		return nil
	}
	delete(p.watches, id)
	p.mgr.metrics.PortListeners(-1)
	return p.emitter.detach(eid)
}

// close detaches every listener and rejects later registrations.
func (p *LocalPort) close() {
	p.mu.Lock()
	p.closed = true
	var detach []func()
	for _, ent := range p.emitter.listeners {
		if ent.detachH != nil {
			detach = append(detach, ent.detachH)
		}
	}
	p.emitter.listeners = nil
	n := len(p.watches)
	p.watches = make(map[WatchID]emitterID)
	p.mu.Unlock()

	p.mgr.metrics.PortListeners(-n)
	for _, fn := range detach {
		fn()
	}
}

// Listeners returns the number of attached listeners.
func (p *LocalPort) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.emitter.listeners)
}

// OnMessageReceived emits the message to every attached listener in
// attachment order.
func (p *LocalPort) OnMessageReceived(data []DataItem, remote *RemotePort) {
	p.mu.Lock()
	listeners := p.emitter.snapshot()
	p.mu.Unlock()

	for _, ent := range listeners {
		msg := Message{Data: append([]DataItem(nil), data...), Remote: remote}
		fn := ent.fn
		if ent.ctx == nil {
			fn(msg)
			continue
		}
		ent.ctx.Post(func() { fn(msg) })
	}
}

// RemotePort is a handle to a port owned by another application.
type RemotePort struct {
	appID   string
	name    string
	trusted bool
	mgr     *Manager
}

func (r *RemotePort) AppID() string           { return r.appID }
func (r *RemotePort) MessagePortName() string { return r.name }
func (r *RemotePort) IsTrusted() bool         { return r.trusted }

// SendMessage sends data to the remote port. When local is not nil the
// receiver can answer through it.
func (r *RemotePort) SendMessage(data []DataItem, local *LocalPort) error {
	req := &SendMessage{Trusted: r.trusted}
	req.AppID.Set(r.appID)
	req.Name.Set(r.name)
	req.Data.Set(data)
	if local != nil {
		req.LocalPortID.Set(local.id)
	}
	return event.Dispatch(r.mgr, req)
}
