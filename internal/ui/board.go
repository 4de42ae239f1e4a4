package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/Dicklesworthstone/wrt_device_api/internal/errs"
	"github.com/Dicklesworthstone/wrt_device_api/internal/loop"
	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
	"github.com/Dicklesworthstone/wrt_device_api/internal/systeminfo"
)

const maxNotes = 6

// Board holds the latest snapshot of every watched property plus a short log
// of notable events. It is written by listener callbacks and read by the view.
type Board struct {
	mu      sync.Mutex
	props   map[model.Kind]model.Property
	updated time.Time
	notes   []string
}

func NewBoard() *Board {
	return &Board{props: make(map[model.Kind]model.Property)}
}

// Record stores p as the latest value of its kind.
func (b *Board) Record(p model.Property) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.props[p.Kind()] = p
	b.updated = time.Now()
}

// Note appends a line to the event log, keeping the newest entries.
func (b *Board) Note(format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line := time.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...)
	b.notes = append(b.notes, line)
	if len(b.notes) > maxNotes {
		b.notes = b.notes[len(b.notes)-maxNotes:]
	}
}

// Snapshot is a consistent copy of the board.
type Snapshot struct {
	Props   map[model.Kind]model.Property
	Updated time.Time
	Notes   []string
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	props := make(map[model.Kind]model.Property, len(b.props))
	for k, v := range b.props {
		props[k] = v
	}
	return Snapshot{Props: props, Updated: b.updated, Notes: append([]string(nil), b.notes...)}
}

// Watch reads every kind once and then follows its changes on ctx.
// Unsupported kinds are noted on the board instead of failing.
func Watch(ctx *loop.Context, svc *systeminfo.Service, kinds []model.Kind, b *Board) ([]systeminfo.ListenerID, error) {
	ids := make([]systeminfo.ListenerID, 0, len(kinds))
	for _, kind := range kinds {
		kind := kind
		onError := func(err error) {
			if errs.Is(err, errs.NotSupported) {
				b.Note("%s not supported", kind)
				return
			}
			b.Note("%s: %v", kind, err)
		}
		if err := svc.GetPropertyValue(ctx, kind.String(), b.Record, onError); err != nil {
			return ids, err
		}
		id, err := svc.AddPropertyValueChangeListener(ctx, kind.String(), b.Record, systeminfo.Options{}, func(error) {})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
