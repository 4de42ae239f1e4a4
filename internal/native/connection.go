package native

import "sync"

// Connection types reported by the connection manager.
const (
	ConnectionNone      = "NONE"
	ConnectionWifi      = "WIFI"
	ConnectionCellular  = "CELLULAR"
	ConnectionEthernet  = "ETHERNET"
	ConnectionBluetooth = "BT"
)

// ConnectionState is the connection manager's view of the device.
type ConnectionState struct {
	Type       string
	IPAddress  string
	IPv6       string
	WifiStatus string
	SSID       string
	Signal     float64
	Interfaces []string
}

// Connection mimics connection_set_type_changed_cb and
// connection_set_ip_address_changed_cb.
type Connection struct {
	mu        sync.Mutex
	state     ConnectionState
	typeCBs   map[uint64]func(string)
	ipCBs     map[uint64]func(string)
	nextID    uint64
	callbacks int
}

func NewConnection() *Connection {
	return &Connection{
		state:   ConnectionState{Type: ConnectionNone, WifiStatus: "OFF"},
		typeCBs: make(map[uint64]func(string)),
		ipCBs:   make(map[uint64]func(string)),
	}
}

func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Interfaces = append([]string(nil), c.state.Interfaces...)
	return st
}

// OnTypeChanged registers fn for connection type changes.
func (c *Connection) OnTypeChanged(fn func(string)) (cancel func()) {
	return c.register(c.typeCBs, fn)
}

// OnIPChanged registers fn for IP address changes.
func (c *Connection) OnIPChanged(fn func(string)) (cancel func()) {
	return c.register(c.ipCBs, fn)
}

func (c *Connection) register(m map[uint64]func(string), fn func(string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	m[id] = fn
	c.callbacks++
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(m, id)
	}
}

// Callbacks counts callback registrations over the connection's lifetime.
func (c *Connection) Callbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks
}

// Update replaces the state and fires the callbacks whose value changed.
func (c *Connection) Update(st ConnectionState) {
	c.mu.Lock()
	prev := c.state
	c.state = st
	c.state.Interfaces = append([]string(nil), st.Interfaces...)
	var fire []func()
	if prev.Type != st.Type {
		for _, fn := range c.typeCBs {
			fn := fn
			fire = append(fire, func() { fn(st.Type) })
		}
	}
	if prev.IPAddress != st.IPAddress || prev.SSID != st.SSID || prev.Signal != st.Signal {
		for _, fn := range c.ipCBs {
			fn := fn
			fire = append(fire, func() { fn(st.IPAddress) })
		}
	}
	c.mu.Unlock()
	for _, f := range fire {
		f()
	}
}
