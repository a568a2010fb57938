package relay

import (
	"sync"

	"github.com/google/uuid"

	"github.com/complyport/screening-relay/internal/metrics"
)

type subscriberState int

const (
	subscriberActive subscriberState = iota
	subscriberPendingRemoval
	subscriberRemoved
)

// Frame is one unit pushed to a subscriber: a serialized event plus the
// sequence used as the push id. Synthetic frames carry sequence 0.
type Frame struct {
	Sequence int64
	Data     []byte
}

// Subscriber is one live push connection: a buffered write handle plus an
// explicit liveness state driven by the fan-out loop. The mutex serializes
// sends against teardown so a write can never hit a closed channel.
type Subscriber struct {
	ID string

	mu    sync.Mutex
	ch    chan Frame
	state subscriberState
}

func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}

	return &Subscriber{
		ID: uuid.NewString(),
		ch: make(chan Frame, buffer),
	}
}

// C is the receive side consumed by the connection's write loop. It is closed
// when the subscriber is removed from the registry.
func (s *Subscriber) C() <-chan Frame { return s.ch }

// TrySend attempts a non-blocking write. It fails when the subscriber's
// buffer is full (slow or dead connection) or it is no longer active.
func (s *Subscriber) TrySend(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != subscriberActive {
		return false
	}

	select {
	case s.ch <- f:
		return true
	default:
		return false
	}
}

func (s *Subscriber) markPendingRemoval() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == subscriberActive {
		s.state = subscriberPendingRemoval
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == subscriberRemoved {
		return
	}
	s.state = subscriberRemoved
	close(s.ch)
}

// Registry tracks currently attached push subscribers. Add and Remove are
// idempotent; mutations are serialized so add/remove never interleaves with
// a snapshot being taken.
type Registry struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscriber)}
}

func (r *Registry) Add(s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[s.ID]; ok {
		return
	}
	r.subs[s.ID] = s
	metrics.ConnectedSubscribers.Set(float64(len(r.subs)))
}

func (r *Registry) Remove(s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[s.ID]; !ok {
		return
	}
	delete(r.subs, s.ID)
	s.close()
	metrics.ConnectedSubscribers.Set(float64(len(r.subs)))
}

// Snapshot returns the current subscriber list; the fan-out loop iterates the
// snapshot without holding the registry lock.
func (r *Registry) Snapshot() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}

	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.subs)
}
