package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/complyport/screening-relay/internal/model"
)

func newTestIngester(capacity int) (*Ingester, *EventLog) {
	log := NewEventLog(capacity)
	b := NewBroadcaster(NewRegistry(), nil)
	return NewIngester(log, b, "complyadvantage", nil), log
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	ing, log := newTestIngester(10)

	_, err := ing.Ingest(context.Background(), []byte("{not json"), "", "")
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload got %v", err)
	}
	if log.Len() != 0 {
		t.Fatalf("malformed body must not mutate the log")
	}
}

func TestIngestRequiresCorrelationField(t *testing.T) {
	ing, log := newTestIngester(10)

	_, err := ing.Ingest(context.Background(), []byte(`{"tenant":"acme"}`), "", "")
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload got %v", err)
	}
	if log.Len() != 0 {
		t.Fatalf("uncorrelatable body must not mutate the log")
	}
}

func TestIngestDerivesDecisionsFromBooleans(t *testing.T) {
	ing, _ := newTestIngester(10)

	body := []byte(`{"customerId":"42","searchQueryId":"Q1","isSanctioned":true}`)
	evt, err := ing.Ingest(context.Background(), body, "", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if evt.Sequence != 1 {
		t.Fatalf("expected sequence 1 got %d", evt.Sequence)
	}
	if evt.ID == "" {
		t.Fatalf("expected assigned event id")
	}
	if !evt.Flags.IsSanctioned || evt.Flags.SanctionDecision != model.DecisionHit {
		t.Fatalf("sanction decision not derived: %+v", evt.Flags)
	}
	// absent booleans default to false, absent decisions to NO_HIT
	if evt.Flags.IsPEP || evt.Flags.PEPDecision != model.DecisionNoHit {
		t.Fatalf("pep decision not derived: %+v", evt.Flags)
	}
	if evt.Flags.MediaDecision != model.DecisionNoHit {
		t.Fatalf("media decision not derived: %+v", evt.Flags)
	}
	if string(evt.Raw) != string(body) {
		t.Fatalf("raw payload not preserved")
	}
}

func TestIngestExplicitDecisionWins(t *testing.T) {
	ing, _ := newTestIngester(10)

	body := []byte(`{"customerId":"42","isSanctioned":false,"sanctionDecision":"HIT"}`)
	evt, err := ing.Ingest(context.Background(), body, "", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evt.Flags.SanctionDecision != model.DecisionHit {
		t.Fatalf("payload decision overridden: %+v", evt.Flags)
	}
}

func TestIngestTenantFallbackChain(t *testing.T) {
	ing, _ := newTestIngester(10)
	ctx := context.Background()

	evt, err := ing.Ingest(ctx, []byte(`{"customerId":"1","tenant":"acme"}`), "hinted", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evt.Tenant != "acme" {
		t.Fatalf("payload tenant must win, got %q", evt.Tenant)
	}

	evt, err = ing.Ingest(ctx, []byte(`{"customerId":"2"}`), "hinted", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evt.Tenant != "hinted" {
		t.Fatalf("caller context must be second, got %q", evt.Tenant)
	}

	evt, err = ing.Ingest(ctx, []byte(`{"customerId":"3"}`), "", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evt.Tenant != "unknown" {
		t.Fatalf("expected unknown tenant got %q", evt.Tenant)
	}
}

func TestIngestSourceDefaultsAndOverrides(t *testing.T) {
	ing, _ := newTestIngester(10)
	ctx := context.Background()

	evt, _ := ing.Ingest(ctx, []byte(`{"customerId":"1"}`), "", "")
	if evt.Source != "complyadvantage" {
		t.Fatalf("expected default source got %q", evt.Source)
	}

	evt, _ = ing.Ingest(ctx, []byte(`{"customerId":"2"}`), "", "othervendor")
	if evt.Source != "othervendor" {
		t.Fatalf("expected route source got %q", evt.Source)
	}

	evt, _ = ing.Ingest(ctx, []byte(`{"customerId":"3","source":"synthetic"}`), "", "othervendor")
	if evt.Source != "synthetic" {
		t.Fatalf("payload source must win, got %q", evt.Source)
	}
}

type captureSink struct {
	events []model.Event
	err    error
}

func (s *captureSink) Publish(_ context.Context, evt model.Event) error {
	s.events = append(s.events, evt)
	return s.err
}

func (s *captureSink) Insert(_ context.Context, evt model.Event) error {
	s.events = append(s.events, evt)
	return s.err
}

func TestIngestMirrorsToSinksAndToleratesTheirFailure(t *testing.T) {
	ing, log := newTestIngester(10)

	audit := &captureSink{}
	archive := &captureSink{err: errors.New("clickhouse down")}
	ing.WithAudit(audit).WithArchive(archive)

	evt, err := ing.Ingest(context.Background(), []byte(`{"customerId":"42"}`), "", "")
	if err != nil {
		t.Fatalf("sink failure must not fail ingestion: %v", err)
	}
	if log.Len() != 1 {
		t.Fatalf("event not appended")
	}
	if len(audit.events) != 1 || audit.events[0].Sequence != evt.Sequence {
		t.Fatalf("audit sink not fed")
	}
}
