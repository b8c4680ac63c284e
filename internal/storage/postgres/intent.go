package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/oolio-settle/internal/domain/settlement"
)

const (
	createIntentSQL = `INSERT INTO settlement_intents (id, status, payload, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)`

	updateIntentSQL = `UPDATE settlement_intents SET status = $2, payload = $3, updated_at = $4 WHERE id = $1`

	getIntentSQL = `SELECT payload FROM settlement_intents WHERE id = $1`

	listPendingIntentsSQL = `SELECT payload FROM settlement_intents
	WHERE status = 'pending' ORDER BY created_at, id`
)

var _ settlement.IntentStore = (*IntentStore)(nil)

// IntentStore implements settlement.IntentStore backed by PostgreSQL.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore returns an IntentStore that uses the given pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

// Create stores a new intent.
func (s *IntentStore) Create(ctx context.Context, in *settlement.Intent) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling intent: %w", err)
	}
	_, err = s.pool.Exec(ctx, createIntentSQL, in.ID, string(in.Status), payload, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating intent %q: %w", in.ID, err)
	}
	return nil
}

// Update replaces the stored intent.
func (s *IntentStore) Update(ctx context.Context, in *settlement.Intent) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling intent: %w", err)
	}
	tag, err := s.pool.Exec(ctx, updateIntentSQL, in.ID, string(in.Status), payload, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating intent %q: %w", in.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return settlement.ErrIntentNotFound
	}
	return nil
}

// Get returns the intent, or settlement.ErrIntentNotFound.
func (s *IntentStore) Get(ctx context.Context, id string) (*settlement.Intent, error) {
	rows, err := s.pool.Query(ctx, getIntentSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting intent %q: %w", id, err)
	}
	in, err := pgx.CollectExactlyOneRow(rows, scanIntent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrIntentNotFound
		}
		return nil, fmt.Errorf("getting intent %q: %w", id, err)
	}
	return &in, nil
}

// ListPending returns intents not yet committed, oldest first.
func (s *IntentStore) ListPending(ctx context.Context) ([]settlement.Intent, error) {
	rows, err := s.pool.Query(ctx, listPendingIntentsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing pending intents: %w", err)
	}
	intents, err := pgx.CollectRows(rows, scanIntent)
	if err != nil {
		return nil, fmt.Errorf("listing pending intents: %w", err)
	}
	return intents, nil
}

func scanIntent(row pgx.CollectableRow) (settlement.Intent, error) {
	var (
		in      settlement.Intent
		payload []byte
	)
	if err := row.Scan(&payload); err != nil {
		return in, err
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		return in, fmt.Errorf("decoding intent: %w", err)
	}
	return in, nil
}
