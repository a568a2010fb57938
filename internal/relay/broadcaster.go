package relay

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/complyport/screening-relay/internal/metrics"
	"github.com/complyport/screening-relay/internal/model"
)

// Broadcaster fans new events out to all live push subscribers and prunes
// dead ones. A failed write to one subscriber never blocks or aborts
// delivery to the rest.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Broadcaster{registry: registry, logger: logger}
}

// Attach registers the subscriber and delivers a synthetic "connected" event
// to that connection only. The courtesy event carries sequence 0 so it lives
// outside the domain sequence space and never advances a consumer cursor; it
// is not appended to the event log.
func (b *Broadcaster) Attach(sub *Subscriber) {
	b.registry.Add(sub)

	connected := model.Event{
		Sequence:   0,
		Source:     model.SourceRelay,
		ReceivedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(connected)
	if err != nil {
		return
	}

	if !sub.TrySend(Frame{Sequence: 0, Data: data}) {
		b.logger.Warn("connected frame rejected", zap.String("subscriber", sub.ID))
	}
}

// Detach removes the subscriber; safe to call more than once.
func (b *Broadcaster) Detach(sub *Subscriber) {
	b.registry.Remove(sub)
}

// Publish serializes the event once and attempts a non-blocking write to
// every registered subscriber. Subscribers whose write fails are marked and
// removed after the loop completes. With no subscribers attached this is a
// no-op; the event stays in the log for pollers.
func (b *Broadcaster) Publish(evt model.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("marshal event", zap.Error(err), zap.Int64("sequence", evt.Sequence))
		return
	}

	frame := Frame{Sequence: evt.Sequence, Data: data}

	var dead []*Subscriber
	for _, sub := range b.registry.Snapshot() {
		if !sub.TrySend(frame) {
			sub.markPendingRemoval()
			dead = append(dead, sub)
		}
	}

	for _, sub := range dead {
		metrics.BroadcastFailures.Inc()
		b.logger.Warn("pruning dead subscriber",
			zap.String("subscriber", sub.ID),
			zap.Int64("sequence", evt.Sequence),
		)
		b.registry.Remove(sub)
	}
}
