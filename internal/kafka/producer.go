package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/complyport/screening-relay/internal/model"
)

// AuditProducer is a thin wrapper around segmentio/kafka-go Writer that
// mirrors ingested events to an audit topic. Writes are keyed by customer id
// so per-customer ordering survives partitioning.
type AuditProducer struct {
	w *kafka.Writer
}

func NewAuditProducer(brokers []string, topic string) *AuditProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}

	return &AuditProducer{w: w}
}

func (p *AuditProducer) Publish(ctx context.Context, evt model.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.CustomerID),
		Value: payload,
	})
}

func (p *AuditProducer) Close() error { return p.w.Close() }
