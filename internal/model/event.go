package model

import (
	"encoding/json"
	"time"
)

type Decision string

const (
	DecisionHit   Decision = "HIT"
	DecisionNoHit Decision = "NO_HIT"
)

func (d Decision) String() string { return string(d) }

func (d Decision) Valid() bool {
	return d == DecisionHit || d == DecisionNoHit
}

// DeriveDecision maps a boolean screening outcome to its decision enum.
func DeriveDecision(hit bool) Decision {
	if hit {
		return DecisionHit
	}
	return DecisionNoHit
}

const (
	// SourceRelay tags synthetic per-connection events emitted by the relay
	// itself (e.g. the "connected" courtesy frame). Consumers never advance
	// their cursor on relay-sourced events.
	SourceRelay = "relay"
)

// Flags carries the screening outcomes opaquely; the relay never interprets
// them beyond deriving missing decisions from the booleans.
type Flags struct {
	IsPEP            bool     `json:"isPEP"`
	IsSanctioned     bool     `json:"isSanctioned"`
	HasAdverseMedia  bool     `json:"hasAdverseMedia"`
	PEPDecision      Decision `json:"pepDecision,omitempty"`
	SanctionDecision Decision `json:"sanctionDecision,omitempty"`
	MediaDecision    Decision `json:"mediaDecision,omitempty"`
}

// Event is one webhook-ingested screening-completion notification.
type Event struct {
	Sequence      int64           `json:"sequence"`
	ID            string          `json:"id"` // ULID assigned at ingestion
	ReceivedAt    time.Time       `json:"receivedAt"`
	CustomerID    string          `json:"customerId"`
	SearchQueryID string          `json:"searchQueryId"`
	Tenant        string          `json:"tenant"`
	Source        string          `json:"source"`
	Flags         Flags           `json:"flags"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// Key is the composite content-dedup key, independent of sequence numbers.
func (e Event) Key() string {
	return e.CustomerID + "|" + e.SearchQueryID
}

// Domain reports whether the event occupies the real sequence space.
// Synthetic per-connection events carry sequence 0.
func (e Event) Domain() bool {
	return e.Sequence > 0
}
