package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/oolio-settle/internal/domain/sequence"
)

// The upsert runs as a single statement, so two callers can never observe
// the same value for a namespace.
const incrementCounterSQL = `INSERT INTO sequence_counters (namespace, last_value)
	VALUES ($1, 1)
	ON CONFLICT (namespace) DO UPDATE SET last_value = sequence_counters.last_value + 1
	RETURNING last_value`

var _ sequence.Store = (*CounterStore)(nil)

// CounterStore implements sequence.Store backed by PostgreSQL.
type CounterStore struct {
	pool *pgxpool.Pool
}

// NewCounterStore returns a CounterStore that uses the given pool.
func NewCounterStore(pool *pgxpool.Pool) *CounterStore {
	return &CounterStore{pool: pool}
}

// Increment advances the counter of ns and returns the new value.
func (s *CounterStore) Increment(ctx context.Context, ns sequence.Namespace) (int64, error) {
	var v int64
	if err := s.pool.QueryRow(ctx, incrementCounterSQL, string(ns)).Scan(&v); err != nil {
		return 0, fmt.Errorf("incrementing %s counter: %w", ns, err)
	}
	return v, nil
}
