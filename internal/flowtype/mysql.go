package flowtype

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// MySQLStore resolves flow types from the onboarding service's
// `onboarding_flows` table. Multiple rows may exist per customer (repeated
// onboarding attempts); the most recent wins.
type MySQLStore struct {
	db *sqlx.DB
}

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Lookup(ctx context.Context, customerID string) (FlowType, error) {
	const q = `
		SELECT flow_type
		FROM onboarding_flows
		WHERE customer_id = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var raw string
	if err := s.db.GetContext(ctx, &raw, q, customerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FlowUnknown, nil
		}
		return FlowUnknown, err
	}

	ft := FlowType(raw)
	if !ft.Valid() {
		return FlowUnknown, nil
	}
	return ft, nil
}
