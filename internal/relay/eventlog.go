package relay

import (
	"sync"
	"time"

	"github.com/complyport/screening-relay/internal/model"
)

const DefaultCapacity = 100

// EventLog is a bounded, append-only ring of ingested events. Sequences are
// assigned here, start at 1, and are never reused or reordered. When the ring
// exceeds capacity the oldest entries are evicted atomically with the append;
// pollers whose cursor predates the oldest retained event silently miss the
// evicted window (no gap signal).
type EventLog struct {
	mu       sync.Mutex
	events   []model.Event
	nextSeq  int64
	capacity int
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &EventLog{
		events:   make([]model.Event, 0, capacity),
		nextSeq:  1,
		capacity: capacity,
	}
}

// Append assigns the next sequence and ingestion timestamp, stores the event,
// and evicts the oldest entries if the ring is over capacity. Returns the
// stored event.
func (l *EventLog) Append(evt model.Event) model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	evt.Sequence = l.nextSeq
	l.nextSeq++
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now().UTC()
	}

	l.events = append(l.events, evt)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append(l.events[:0], l.events[over:]...)
	}

	return evt
}

// Since returns all retained events with sequence > cursor, oldest first.
func (l *EventLog) Since(cursor int64) []model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := 0
	for i < len(l.events) && l.events[i].Sequence <= cursor {
		i++
	}

	out := make([]model.Event, len(l.events)-i)
	copy(out, l.events[i:])

	return out
}

// Latest returns the highest assigned sequence, 0 if nothing was ever appended.
func (l *EventLog) Latest() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.nextSeq - 1
}

// Len returns the number of currently retained events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.events)
}
