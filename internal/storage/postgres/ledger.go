package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/oolio-settle/internal/domain/ledger"
)

const (
	appendTicketSQL = `INSERT INTO closed_tickets
	(id, ticket_id, order_id, table_number, customer_name, document_type, payment_method, total, document, closed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING`

	getTicketSQL = `SELECT document FROM closed_tickets WHERE id = $1`

	searchTicketsSQL = `SELECT document FROM closed_tickets
	WHERE $1 = ''
		OR ticket_id ILIKE $2
		OR table_number ILIKE $2
		OR customer_name ILIKE $2
		OR EXISTS (
			SELECT 1 FROM jsonb_array_elements(document->'items') AS item
			WHERE item->>'product_name' ILIKE $2
		)
	ORDER BY seq DESC`

	eachTicketSQL = `SELECT document FROM closed_tickets ORDER BY seq`

	clearTicketsSQL = `DELETE FROM closed_tickets`
)

var _ ledger.Store = (*LedgerStore)(nil)

// LedgerStore implements ledger.Store backed by PostgreSQL. The record is
// stored whole as JSONB; seq gives the insertion order.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore returns a LedgerStore that uses the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Append stores t, or returns ledger.ErrDuplicate if its ID is taken.
func (s *LedgerStore) Append(ctx context.Context, t *ledger.ClosedTicket) error {
	doc, err := t.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling document %q: %w", t.ID, err)
	}
	tag, err := s.pool.Exec(ctx, appendTicketSQL,
		t.ID, t.TicketID, t.OrderID, t.TableNumber, t.CustomerName,
		string(t.DocumentType), string(t.PaymentMethod), t.Total, doc, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("appending document %q: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

// Get returns the record with the given ID, or ledger.ErrNotFound.
func (s *LedgerStore) Get(ctx context.Context, id string) (*ledger.ClosedTicket, error) {
	rows, err := s.pool.Query(ctx, getTicketSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting document %q: %w", id, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTicket)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("getting document %q: %w", id, err)
	}
	return &t, nil
}

// Search returns the records matching query, most recent first.
func (s *LedgerStore) Search(ctx context.Context, query string) ([]ledger.ClosedTicket, error) {
	rows, err := s.pool.Query(ctx, searchTicketsSQL, query, containsPattern(query))
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	tickets, err := pgx.CollectRows(rows, scanTicket)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	return tickets, nil
}

// Each calls fn for every record in insertion order and stops at the first
// error.
func (s *LedgerStore) Each(ctx context.Context, fn func(*ledger.ClosedTicket) error) error {
	rows, err := s.pool.Query(ctx, eachTicketSQL)
	if err != nil {
		return fmt.Errorf("scanning ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return fmt.Errorf("scanning ledger: %w", err)
		}
		if err := fn(&t); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Clear deletes every record.
func (s *LedgerStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, clearTicketsSQL); err != nil {
		return fmt.Errorf("clearing ledger: %w", err)
	}
	return nil
}

func scanTicket(row pgx.CollectableRow) (ledger.ClosedTicket, error) {
	var (
		t   ledger.ClosedTicket
		doc []byte
	)
	if err := row.Scan(&doc); err != nil {
		return t, err
	}
	if err := t.UnmarshalJSON(doc); err != nil {
		return t, fmt.Errorf("decoding document: %w", err)
	}
	return t, nil
}
