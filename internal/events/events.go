// Package events provides the in-process event bus used to broadcast run
// lifecycle events to subscribers (websocket stream, logs).
package events

import (
	"sync"
	"time"
)

// EventType identifies a kind of event.
type EventType string

const (
	// RunStarted fires when a run begins for an as-of date.
	RunStarted EventType = "run_started"
	// InstrumentDropped fires when an instrument is excluded from a run.
	InstrumentDropped EventType = "instrument_dropped"
	// RunCompleted fires when a run persists its allocation snapshot.
	RunCompleted EventType = "run_completed"
	// RunFailed fires when a run hits a fatal error.
	RunFailed EventType = "run_failed"
	// BackfillCompleted fires when a backfill range finishes.
	BackfillCompleted EventType = "backfill_completed"
)

// Event is a timestamped occurrence with typed payload data.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Bus is a fan-out event bus. Subscribers receive events on buffered
// channels; a subscriber that falls behind has events dropped rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}
}

// Publish sends an event to all subscribers without blocking.
func (b *Bus) Publish(eventType EventType, data interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than block the run.
		}
	}
}
