package native

import "sync"

// Orientation values reported by the accelerometer.
const (
	PortraitPrimary    = "PORTRAIT_PRIMARY"
	PortraitSecondary  = "PORTRAIT_SECONDARY"
	LandscapePrimary   = "LANDSCAPE_PRIMARY"
	LandscapeSecondary = "LANDSCAPE_SECONDARY"
)

// OrientationEvent is delivered on every rotation.
type OrientationEvent struct {
	Status       string
	AutoRotation bool
}

// SensorHub fans accelerometer rotation events out to registered handlers.
type SensorHub struct {
	mu       sync.Mutex
	current  OrientationEvent
	handlers map[uint64]func(OrientationEvent)
	nextID   uint64
	started  int
}

func NewSensorHub() *SensorHub {
	return &SensorHub{
		current:  OrientationEvent{Status: PortraitPrimary, AutoRotation: true},
		handlers: make(map[uint64]func(OrientationEvent)),
	}
}

func (h *SensorHub) Current() OrientationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Register starts delivering rotation events to fn.
func (h *SensorHub) Register(fn func(OrientationEvent)) (unregister func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.handlers[id] = fn
	h.started++
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.handlers, id)
		})
	}
}

// Registrations counts Register calls over the hub's lifetime.
func (h *SensorHub) Registrations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Publish records ev and delivers it when it differs from the current state.
func (h *SensorHub) Publish(ev OrientationEvent) {
	h.mu.Lock()
	if ev == h.current {
		h.mu.Unlock()
		return
	}
	h.current = ev
	fns := make([]func(OrientationEvent), 0, len(h.handlers))
	for _, fn := range h.handlers {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
