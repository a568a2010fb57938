package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/complyport/screening-relay/internal/metrics"
	"github.com/complyport/screening-relay/internal/model"
	"github.com/complyport/screening-relay/internal/util"
)

// ErrInvalidPayload marks a webhook body that cannot become an event: not a
// JSON object, or missing every correlation field. Reported to the caller;
// the event log is left untouched.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// AuditSink mirrors ingested events to an external audit stream. Failures
// are logged and never fail ingestion.
type AuditSink interface {
	Publish(ctx context.Context, evt model.Event) error
}

// ArchiveSink persists ingested events for back-office reporting. Failures
// are logged and never fail ingestion.
type ArchiveSink interface {
	Insert(ctx context.Context, evt model.Event) error
}

// webhookPayload is the loosely-typed inbound shape. Flag booleans are
// pointers so that "absent" and "false" can be told apart when deriving
// decisions.
type webhookPayload struct {
	CustomerID       string `json:"customerId"`
	SearchQueryID    string `json:"searchQueryId"`
	Tenant           string `json:"tenant"`
	Source           string `json:"source"`
	IsPEP            *bool  `json:"isPEP"`
	IsSanctioned     *bool  `json:"isSanctioned"`
	HasAdverseMedia  *bool  `json:"hasAdverseMedia"`
	PEPDecision      string `json:"pepDecision"`
	SanctionDecision string `json:"sanctionDecision"`
	MediaDecision    string `json:"mediaDecision"`
}

// Ingester validates and normalizes inbound third-party payloads into event
// log entries, then triggers the broadcaster.
type Ingester struct {
	log         *EventLog
	broadcaster *Broadcaster
	audit       AuditSink   // optional
	archive     ArchiveSink // optional
	source      string      // default producer tag
	logger      *zap.Logger
}

func NewIngester(log *EventLog, broadcaster *Broadcaster, source string, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ingester{
		log:         log,
		broadcaster: broadcaster,
		source:      source,
		logger:      logger,
	}
}

// WithAudit attaches an optional audit sink.
func (i *Ingester) WithAudit(sink AuditSink) *Ingester {
	i.audit = sink
	return i
}

// WithArchive attaches an optional archive sink.
func (i *Ingester) WithArchive(sink ArchiveSink) *Ingester {
	i.archive = sink
	return i
}

// Ingest parses and normalizes the raw webhook body, appends the event and
// publishes it to push subscribers. tenantHint is caller-supplied context
// (header), consulted when the payload itself names no tenant; sourceHint
// overrides the default producer tag (vendor-specific webhook route).
//
// Semantically incomplete payloads are tolerated: absent flag booleans
// default to false, absent decisions derive from the booleans.
func (i *Ingester) Ingest(ctx context.Context, body []byte, tenantHint, sourceHint string) (model.Event, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		metrics.EventsIngested.WithLabelValues("invalid").Inc()
		i.logger.Warn("webhook payload rejected", zap.Error(err))
		return model.Event{}, ErrInvalidPayload
	}

	p.CustomerID = strings.TrimSpace(p.CustomerID)
	p.SearchQueryID = strings.TrimSpace(p.SearchQueryID)

	// at least one correlation field is required
	if p.CustomerID == "" && p.SearchQueryID == "" {
		metrics.EventsIngested.WithLabelValues("invalid").Inc()
		i.logger.Warn("webhook payload missing correlation fields")
		return model.Event{}, ErrInvalidPayload
	}

	evt := model.Event{
		ID:            util.NewID(),
		CustomerID:    p.CustomerID,
		SearchQueryID: p.SearchQueryID,
		Tenant:        tenant(p.Tenant, tenantHint),
		Source:        source(p.Source, sourceHint, i.source),
		Flags:         normalizeFlags(p),
		Raw:           json.RawMessage(body),
	}

	evt = i.log.Append(evt)
	i.broadcaster.Publish(evt)

	if i.audit != nil {
		if err := i.audit.Publish(ctx, evt); err != nil {
			i.logger.Warn("audit mirror failed", zap.Error(err), zap.Int64("sequence", evt.Sequence))
		}
	}
	if i.archive != nil {
		if err := i.archive.Insert(ctx, evt); err != nil {
			i.logger.Warn("archive insert failed", zap.Error(err), zap.Int64("sequence", evt.Sequence))
		}
	}

	metrics.EventsIngested.WithLabelValues("ok").Inc()
	i.logger.Info("event ingested",
		zap.Int64("sequence", evt.Sequence),
		zap.String("id", evt.ID),
		zap.String("customer_id", evt.CustomerID),
		zap.String("tenant", evt.Tenant),
	)

	return evt, nil
}

// tenant resolves the fallback chain: payload field, caller context, "unknown".
func tenant(payload, hint string) string {
	if payload = strings.TrimSpace(payload); payload != "" {
		return payload
	}
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint
	}
	return "unknown"
}

func source(payload, hint, fallback string) string {
	if payload = strings.TrimSpace(payload); payload != "" {
		return payload
	}
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint
	}
	return fallback
}

func normalizeFlags(p webhookPayload) model.Flags {
	f := model.Flags{
		IsPEP:           p.IsPEP != nil && *p.IsPEP,
		IsSanctioned:    p.IsSanctioned != nil && *p.IsSanctioned,
		HasAdverseMedia: p.HasAdverseMedia != nil && *p.HasAdverseMedia,
	}

	f.PEPDecision = decision(p.PEPDecision, f.IsPEP)
	f.SanctionDecision = decision(p.SanctionDecision, f.IsSanctioned)
	f.MediaDecision = decision(p.MediaDecision, f.HasAdverseMedia)

	return f
}

func decision(raw string, hit bool) model.Decision {
	if d := model.Decision(strings.TrimSpace(raw)); d.Valid() {
		return d
	}
	return model.DeriveDecision(hit)
}
