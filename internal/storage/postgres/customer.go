package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, name, balance FROM customers WHERE id = $1`

	setCustomerBalanceSQL = `UPDATE customers SET balance = $2, updated_at = now() WHERE id = $1`

	upsertCustomerSQL = `INSERT INTO customers (id, name, balance)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, balance = EXCLUDED.balance, updated_at = now()`
)

var _ customer.Directory = (*CustomerStore)(nil)

// CustomerStore implements customer.Directory backed by PostgreSQL.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore returns a CustomerStore that uses the given pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

// Get returns the customer, or customer.ErrNotFound.
func (s *CustomerStore) Get(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := s.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[customer.Customer])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// SetBalance overwrites the stored balance.
func (s *CustomerStore) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, setCustomerBalanceSQL, id, balance)
	if err != nil {
		return fmt.Errorf("setting balance of customer %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// Upsert creates or replaces a customer. Used for seeding.
func (s *CustomerStore) Upsert(ctx context.Context, c *customer.Customer) error {
	if _, err := s.pool.Exec(ctx, upsertCustomerSQL, c.ID, c.Name, c.Balance); err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.ID, err)
	}
	return nil
}
