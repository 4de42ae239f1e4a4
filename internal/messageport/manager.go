// Package messageport implements the inter-application message port
// registry: local and remote port identity caches, the per-port listener
// emitter, and demultiplexing of messages delivered by the platform daemon.
package messageport

import (
	"sync"

	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
	"github.com/Dicklesworthstone/wrt_device_api/internal/event"
	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
	"github.com/Dicklesworthstone/wrt_device_api/internal/metrics"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

type localKey struct {
	name    string
	trusted bool
}

type remoteKey struct {
	appID   string
	name    string
	trusted bool
}

// Manager owns the canonical port objects of one application. At most one
// LocalPort exists per (name, trusted) and one RemotePort per
// (appID, name, trusted).
type Manager struct {
	svc     native.MessagePortService
	log     *logging.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	locals  map[localKey]*LocalPort
	byID    map[int]*LocalPort
	remotes map[remoteKey]*RemotePort
}

var _ event.Receiver = (*Manager)(nil)

func NewManager(svc native.MessagePortService, log *logging.Logger) *Manager {
	return &Manager{
		svc:     svc,
		log:     log,
		locals:  make(map[localKey]*LocalPort),
		byID:    make(map[int]*LocalPort),
		remotes: make(map[remoteKey]*RemotePort),
	}
}

// WithMetrics records inbound message and listener counts in mm.
func (m *Manager) WithMetrics(mm *metrics.Metrics) *Manager {
	m.metrics = mm
	return m
}

func (m *Manager) RequestLocalMessagePort(name string) (*LocalPort, error) {
	return m.requestLocal(name, false)
}

func (m *Manager) RequestTrustedLocalMessagePort(name string) (*LocalPort, error) {
	return m.requestLocal(name, true)
}

func (m *Manager) RequestRemoteMessagePort(appID, name string) (*RemotePort, error) {
	return m.requestRemote(appID, name, false)
}

func (m *Manager) RequestTrustedRemoteMessagePort(appID, name string) (*RemotePort, error) {
	return m.requestRemote(appID, name, true)
}

func (m *Manager) requestLocal(name string, trusted bool) (*LocalPort, error) {
	req := &RequestLocalPort{Trusted: trusted}
	req.Name.Set(name)
	m.Handle(req)
	return event.Expect(req, &req.Port)
}

func (m *Manager) requestRemote(appID, name string, trusted bool) (*RemotePort, error) {
	req := &RequestRemotePort{Trusted: trusted}
	req.AppID.Set(appID)
	req.Name.Set(name)
	m.Handle(req)
	return event.Expect(req, &req.Port)
}

// Handle processes one request synchronously.
func (m *Manager) Handle(r event.Request) {
	switch req := r.(type) {
	case *RequestLocalPort:
		m.handleLocal(req)
	case *RequestRemotePort:
		m.handleRemote(req)
	case *SendMessage:
		m.handleSend(req)
	case *AddListener:
		if req.Port == nil {
			req.SetException(errs.InvalidArgument, "local port is required")
			return
		}
		req.Port.handleAdd(req)
	case *RemoveListener:
		if req.Port == nil {
			req.SetException(errs.InvalidArgument, "local port is required")
			return
		}
		req.Port.handleRemove(req)
	default:
		r.Outcome().SetException(errs.Unknown, "unsupported request")
	}
}

func (m *Manager) handleLocal(req *RequestLocalPort) {
	name := req.Name.Get()
	if !req.Name.IsSet() || name == "" {
		req.SetException(errs.InvalidArgument, "port name is required")
		return
	}
	key := localKey{name: name, trusted: req.Trusted}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.locals[key]; ok {
		req.Port.Set(p)
		req.SetResult(true)
		return
	}
	id, err := m.svc.RegisterLocalPort(name, req.Trusted, m.onMessage)
	if err != nil {
		req.Fail(registerErrors.wrap(err, "register local port %q", name))
		return
	}
	p := newLocalPort(m, id, name, req.Trusted)
	m.locals[key] = p
	m.byID[id] = p
	m.log.Debugf("messageport: local port %q trusted=%v registered as %d", name, req.Trusted, id)
	req.Port.Set(p)
	req.SetResult(true)
}

func (m *Manager) handleRemote(req *RequestRemotePort) {
	appID, name := req.AppID.Get(), req.Name.Get()
	if appID == "" || name == "" {
		req.SetException(errs.InvalidArgument, "application id and port name are required")
		return
	}
	p, err := m.remotePort(appID, name, req.Trusted)
	if err != nil {
		req.Fail(err)
		return
	}
	req.Port.Set(p)
	req.SetResult(true)
}

// remotePort validates the target against the daemon before returning the
// cached handle. A port is usable only when it exists and the check reported
// no error.
func (m *Manager) remotePort(appID, name string, trusted bool) (*RemotePort, error) {
	exists, err := m.svc.CheckRemotePort(appID, name, trusted)
	if err != nil {
		return nil, checkRemoteErrors.wrap(err, "check remote port %s/%s", appID, name)
	}
	if !exists {
		return nil, errs.New(errs.NotFound, "remote port %s/%s not found", appID, name)
	}

	key := remoteKey{appID: appID, name: name, trusted: trusted}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.remotes[key]; ok {
		return p, nil
	}
	p := &RemotePort{appID: appID, name: name, trusted: trusted, mgr: m}
	m.remotes[key] = p
	return p, nil
}

func (m *Manager) handleSend(req *SendMessage) {
	appID, name := req.AppID.Get(), req.Name.Get()
	if appID == "" || name == "" {
		req.SetException(errs.InvalidArgument, "application id and port name are required")
		return
	}
	data := req.Data.Get()
	if err := validateData(data); err != nil {
		req.Fail(err)
		return
	}
	bundle := toBundle(data)

	var err error
	switch {
	case req.LocalPortID.IsSet() && req.Trusted:
		err = m.svc.SendTrustedBidirectionalMessage(appID, name, bundle, req.LocalPortID.Get())
	case req.LocalPortID.IsSet():
		err = m.svc.SendBidirectionalMessage(appID, name, bundle, req.LocalPortID.Get())
	case req.Trusted:
		err = m.svc.SendTrustedMessage(appID, name, bundle)
	default:
		err = m.svc.SendMessage(appID, name, bundle)
	}
	if err != nil {
		req.Fail(sendErrors.wrap(err, "send message to %s/%s", appID, name))
		return
	}
	req.SetResult(true)
}

// onMessage is registered with the daemon for every local port.
func (m *Manager) onMessage(localID int, remoteAppID, remotePort string, trustedRemote bool, data native.Bundle) {
	m.mu.Lock()
	port, ok := m.byID[localID]
	m.mu.Unlock()
	if !ok {
		m.log.Warnf("messageport: dropping message for unknown local port %d", localID)
		m.metrics.Message("dropped")
		return
	}

	var remote *RemotePort
	if remoteAppID != "" {
		r, err := m.remotePort(remoteAppID, remotePort, trustedRemote)
		if err != nil {
			m.log.Warnf("messageport: cannot resolve sender %s/%s: %v", remoteAppID, remotePort, err)
		} else {
			remote = r
		}
	}
	m.metrics.Message("delivered")
	port.OnMessageReceived(fromBundle(data), remote)
}

// Close detaches the listeners of every local port and unregisters the
// ports from the daemon.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for key, p := range m.locals {
		p.close()
		if err := m.svc.UnregisterLocalPort(p.id, p.trusted); err != nil && first == nil {
			first = registerErrors.wrap(err, "unregister local port %q", key.name)
		}
	}
	m.locals = make(map[localKey]*LocalPort)
	m.byID = make(map[int]*LocalPort)
	m.remotes = make(map[remoteKey]*RemotePort)
	return first
}
