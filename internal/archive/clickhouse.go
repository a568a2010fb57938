package archive

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/complyport/screening-relay/internal/model"
)

// Row is the archived event shape served by the reports endpoint.
type Row struct {
	Sequence      int64     `db:"sequence" json:"sequence"`
	ID            string    `db:"id" json:"id"`
	ReceivedAt    time.Time `db:"received_at" json:"receivedAt"`
	CustomerID    string    `db:"customer_id" json:"customerId"`
	SearchQueryID string    `db:"search_query_id" json:"searchQueryId"`
	Tenant        string    `db:"tenant" json:"tenant"`
	Source        string    `db:"source" json:"source"`
	Sanction      string    `db:"sanction_decision" json:"sanctionDecision"`
	PEP           string    `db:"pep_decision" json:"pepDecision"`
	Media         string    `db:"media_decision" json:"mediaDecision"`
}

// Store archives ingested events to ClickHouse and lists them for reports.
type Store interface {
	Insert(ctx context.Context, evt model.Event) error
	List(ctx context.Context, customerID string, limit, offset int) ([]Row, error)
}

type clickhouseStore struct {
	ch *sqlx.DB
}

func NewClickHouseStore(ch *sqlx.DB) Store {
	return &clickhouseStore{ch: ch}
}

func (s *clickhouseStore) Insert(ctx context.Context, evt model.Event) error {
	const q = `
		INSERT INTO relay.events
			(sequence, id, received_at, customer_id, search_query_id, tenant, source,
			 sanction_decision, pep_decision, media_decision, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.ch.ExecContext(ctx, q,
		evt.Sequence,
		evt.ID,
		evt.ReceivedAt,
		evt.CustomerID,
		evt.SearchQueryID,
		evt.Tenant,
		evt.Source,
		evt.Flags.SanctionDecision.String(),
		evt.Flags.PEPDecision.String(),
		evt.Flags.MediaDecision.String(),
		string(evt.Raw),
	)

	return err
}

func (s *clickhouseStore) List(ctx context.Context, customerID string, limit, offset int) ([]Row, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT sequence, id, received_at, customer_id, search_query_id, tenant, source,
		       sanction_decision, pep_decision, media_decision
		FROM relay.events
	`
	args := []any{}

	if customerID != "" {
		q += " WHERE customer_id = ?"
		args = append(args, customerID)
	}

	q += " ORDER BY received_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []Row
	if err := s.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
