package messageport

import (
	"github.com/Dicklesworthstone/wrt_device_api/internal/event"
	"github.com/Dicklesworthstone/wrt_device_api/internal/loop"
)

// RequestLocalPort asks for the local port registered under Name.
type RequestLocalPort struct {
	event.Base
	Name    event.Field[string]
	Trusted bool

	Port event.Field[*LocalPort]
}

// RequestRemotePort asks for a handle to another application's port.
type RequestRemotePort struct {
	event.Base
	AppID   event.Field[string]
	Name    event.Field[string]
	Trusted bool

	Port event.Field[*RemotePort]
}

// SendMessage delivers Data to the port (AppID, Name). LocalPortID, when
// set, makes the send bidirectional.
type SendMessage struct {
	event.Base
	AppID       event.Field[string]
	Name        event.Field[string]
	Trusted     bool
	Data        event.Field[[]DataItem]
	LocalPortID event.Field[int]
}

// AddListener attaches a listener to Port.
type AddListener struct {
	event.Base
	Port     *LocalPort
	Context  *loop.Context
	Listener event.Field[Listener]

	WatchID event.Field[WatchID]
}

// RemoveListener detaches the listener registered under WatchID.
type RemoveListener struct {
	event.Base
	Port    *LocalPort
	WatchID event.Field[WatchID]
}
