package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/oolio-settle/internal/domain/order"
)

const (
	getOpenOrderSQL = `SELECT id, table_number, kind, COALESCE(customer_id, ''), lines, subtotal, tax, total
	FROM orders WHERE id = $1 AND settled_at IS NULL`

	listPartialPaymentsSQL = `SELECT id, order_id, amount, instrument, receipt_id, created_at
	FROM partial_payments WHERE order_id = $1 ORDER BY created_at, id`

	insertPartialPaymentSQL = `INSERT INTO partial_payments (id, order_id, amount, instrument, receipt_id, created_at)
	SELECT $1::text, o.id, $3::numeric, $4::text, $5::text, $6::timestamptz
	FROM orders o WHERE o.id = $2::text AND o.settled_at IS NULL
	ON CONFLICT (id) DO NOTHING`

	partialPaymentExistsSQL = `SELECT EXISTS (SELECT 1 FROM partial_payments WHERE id = $1)`

	settleOrderSQL = `UPDATE orders SET settled_at = now() WHERE id = $1 AND settled_at IS NULL`

	upsertOrderSQL = `INSERT INTO orders (id, table_number, kind, customer_id, lines, subtotal, tax, total)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		table_number = EXCLUDED.table_number,
		kind = EXCLUDED.kind,
		customer_id = EXCLUDED.customer_id,
		lines = EXCLUDED.lines,
		subtotal = EXCLUDED.subtotal,
		tax = EXCLUDED.tax,
		total = EXCLUDED.total,
		settled_at = NULL`
)

var _ order.Aggregator = (*OrderStore)(nil)

// OrderStore implements order.Aggregator backed by PostgreSQL. Cleared
// orders are kept with settled_at set and are no longer returned by Get.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Get returns an open order, or order.ErrNotFound.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, getOpenOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// PartialPayments returns the payments recorded against the order, oldest first.
func (s *OrderStore) PartialPayments(ctx context.Context, orderID string) ([]order.PartialPayment, error) {
	rows, err := s.pool.Query(ctx, listPartialPaymentsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing partial payments of %q: %w", orderID, err)
	}
	payments, err := pgx.CollectRows(rows, scanPartialPayment)
	if err != nil {
		return nil, fmt.Errorf("listing partial payments of %q: %w", orderID, err)
	}
	return payments, nil
}

// Clear marks the order as settled.
func (s *OrderStore) Clear(ctx context.Context, orderID string) error {
	tag, err := s.pool.Exec(ctx, settleOrderSQL, orderID)
	if err != nil {
		return fmt.Errorf("settling order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// RecordPartialPayment appends p to an open order. A payment with an
// existing ID is ignored; a new payment against a settled or unknown order
// returns order.ErrNotFound.
func (s *OrderStore) RecordPartialPayment(ctx context.Context, orderID string, p order.PartialPayment) error {
	tag, err := s.pool.Exec(ctx, insertPartialPaymentSQL,
		p.ID, orderID, p.Amount, string(p.Instrument), p.ReceiptID, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording partial payment %q: %w", p.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, partialPaymentExistsSQL, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking partial payment %q: %w", p.ID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return nil
}

// Upsert creates or reopens an order. Used for seeding.
func (s *OrderStore) Upsert(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}
	_, err = s.pool.Exec(ctx, upsertOrderSQL,
		o.ID, o.TableNumber, string(o.Kind), o.CustomerID, linesJSON, o.Subtotal, o.Tax, o.Total,
	)
	if err != nil {
		return fmt.Errorf("upserting order %q: %w", o.ID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		kind      string
		linesJSON []byte
	)
	err := row.Scan(&o.ID, &o.TableNumber, &kind, &o.CustomerID, &linesJSON, &o.Subtotal, &o.Tax, &o.Total)
	if err != nil {
		return o, err
	}
	o.Kind = order.Kind(kind)
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling order lines: %w", err)
	}
	return o, nil
}

func scanPartialPayment(row pgx.CollectableRow) (order.PartialPayment, error) {
	var (
		p          order.PartialPayment
		instrument string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &instrument, &p.ReceiptID, &p.CreatedAt)
	p.Instrument = order.Instrument(instrument)
	return p, err
}
