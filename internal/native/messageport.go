package native

import (
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
)

// Errno is a negative message-port service result code.
type Errno int

const (
	ErrNone                Errno = 0
	ErrIO                  Errno = -5
	ErrOutOfMemory         Errno = -12
	ErrInvalidParameter    Errno = -22
	ErrPortNotFound        Errno = -0x01130001
	ErrCertificateNotMatch Errno = -0x01130002
	ErrMaxExceeded         Errno = -0x01130003
	ErrResourceUnavailable Errno = -0x01130004
)

var errnoNames = map[Errno]string{
	ErrNone:                "MESSAGE_PORT_ERROR_NONE",
	ErrIO:                  "MESSAGE_PORT_ERROR_IO_ERROR",
	ErrOutOfMemory:         "MESSAGE_PORT_ERROR_OUT_OF_MEMORY",
	ErrInvalidParameter:    "MESSAGE_PORT_ERROR_INVALID_PARAMETER",
	ErrPortNotFound:        "MESSAGE_PORT_ERROR_MESSAGEPORT_NOT_FOUND",
	ErrCertificateNotMatch: "MESSAGE_PORT_ERROR_CERTIFICATE_NOT_MATCH",
	ErrMaxExceeded:         "MESSAGE_PORT_ERROR_MAX_EXCEEDED",
	ErrResourceUnavailable: "MESSAGE_PORT_ERROR_RESOURCE_UNAVAILABLE",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("MESSAGE_PORT_ERROR(%d)", int(e))
}

// Bundle is the flat string map carried by the message-port service.
type Bundle map[string]string

// Encode returns the serialized form used for size accounting.
func (b Bundle) Encode() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(map[string]string(b))
}

func (b Bundle) clone() Bundle {
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ReceiveFunc is invoked on a platform goroutine for every delivered message.
// remoteAppID and remotePort are empty for one-way sends.
type ReceiveFunc func(localPortID int, remoteAppID, remotePort string, trustedRemote bool, data Bundle)

// MessagePortService is the contract of the platform message-port daemon as
// seen by one application.
type MessagePortService interface {
	RegisterLocalPort(name string, trusted bool, cb ReceiveFunc) (int, error)
	UnregisterLocalPort(id int, trusted bool) error
	CheckRemotePort(appID, name string, trusted bool) (exists bool, err error)
	SendMessage(appID, name string, data Bundle) error
	SendTrustedMessage(appID, name string, data Bundle) error
	SendBidirectionalMessage(appID, name string, data Bundle, localPortID int) error
	SendTrustedBidirectionalMessage(appID, name string, data Bundle, localPortID int) error
}

// DefaultMaxMessageSize bounds the encoded bundle size.
const DefaultMaxMessageSize = 4 * 1024

type portKey struct {
	appID   string
	name    string
	trusted bool
}

type portEntry struct {
	id     int
	key    portKey
	client *BusClient
	cb     ReceiveFunc
}

// Bus is an in-process message-port daemon shared by any number of
// application clients.
type Bus struct {
	MaxMessageSize int

	log    *logging.Logger
	mu     sync.Mutex
	nextID int
	ports  map[portKey]*portEntry
	byID   map[int]*portEntry
}

func NewBus(log *logging.Logger) *Bus {
	return &Bus{
		MaxMessageSize: DefaultMaxMessageSize,
		log:            log,
		ports:          make(map[portKey]*portEntry),
		byID:           make(map[int]*portEntry),
	}
}

// Client returns the service view of one application. Applications sharing a
// certificate may talk over trusted ports.
func (b *Bus) Client(appID, certificate string) *BusClient {
	return &BusClient{bus: b, appID: appID, certificate: certificate}
}

// BusClient implements MessagePortService for one application.
type BusClient struct {
	bus         *Bus
	appID       string
	certificate string
}

var _ MessagePortService = (*BusClient)(nil)

func (c *BusClient) AppID() string { return c.appID }

func (c *BusClient) RegisterLocalPort(name string, trusted bool, cb ReceiveFunc) (int, error) {
	if name == "" || cb == nil {
		return 0, ErrInvalidParameter
	}
	b := c.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	key := portKey{appID: c.appID, name: name, trusted: trusted}
	if e, ok := b.ports[key]; ok {
		e.cb = cb
		return e.id, nil
	}
	b.nextID++
	e := &portEntry{id: b.nextID, key: key, client: c, cb: cb}
	b.ports[key] = e
	b.byID[e.id] = e
	b.log.Debugf("bus: registered %s/%s trusted=%v as %d", c.appID, name, trusted, e.id)
	return e.id, nil
}

func (c *BusClient) UnregisterLocalPort(id int, trusted bool) error {
	b := c.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.byID[id]
	if !ok || e.client.appID != c.appID || e.key.trusted != trusted {
		return ErrInvalidParameter
	}
	delete(b.byID, id)
	delete(b.ports, e.key)
	return nil
}

func (c *BusClient) CheckRemotePort(appID, name string, trusted bool) (bool, error) {
	if appID == "" || name == "" {
		return false, ErrInvalidParameter
	}
	b := c.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.ports[portKey{appID: appID, name: name, trusted: trusted}]
	if !ok {
		return false, nil
	}
	if trusted && e.client.certificate != c.certificate {
		return true, ErrCertificateNotMatch
	}
	return true, nil
}

func (c *BusClient) SendMessage(appID, name string, data Bundle) error {
	return c.send(appID, name, false, data, 0, false)
}

func (c *BusClient) SendTrustedMessage(appID, name string, data Bundle) error {
	return c.send(appID, name, true, data, 0, false)
}

func (c *BusClient) SendBidirectionalMessage(appID, name string, data Bundle, localPortID int) error {
	return c.send(appID, name, false, data, localPortID, true)
}

func (c *BusClient) SendTrustedBidirectionalMessage(appID, name string, data Bundle, localPortID int) error {
	return c.send(appID, name, true, data, localPortID, true)
}

func (c *BusClient) send(appID, name string, trusted bool, data Bundle, localPortID int, bidirectional bool) error {
	if appID == "" || name == "" || data == nil {
		return ErrInvalidParameter
	}
	raw, err := data.Encode()
	if err != nil {
		return ErrInvalidParameter
	}
	b := c.bus
	if b.MaxMessageSize > 0 && len(raw) > b.MaxMessageSize {
		return ErrMaxExceeded
	}

	b.mu.Lock()
	target, ok := b.ports[portKey{appID: appID, name: name, trusted: trusted}]
	if !ok {
		b.mu.Unlock()
		return ErrPortNotFound
	}
	if trusted && target.client.certificate != c.certificate {
		b.mu.Unlock()
		return ErrCertificateNotMatch
	}
	var remoteApp, remotePort string
	var remoteTrusted bool
	if bidirectional {
		from, ok := b.byID[localPortID]
		if !ok || from.client.appID != c.appID {
			b.mu.Unlock()
			return ErrInvalidParameter
		}
		remoteApp, remotePort, remoteTrusted = from.key.appID, from.key.name, from.key.trusted
	}
	id, cb := target.id, target.cb
	b.mu.Unlock()

	cb(id, remoteApp, remotePort, remoteTrusted, data.clone())
	return nil
}
