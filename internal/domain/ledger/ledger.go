// Package ledger defines the append-only store of closed documents (tickets
// and receipts). The ledger is the only source reprints are generated from.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/tax"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned when appending a record whose id is already stored.
	ErrDuplicate = errors.New("document already recorded")
)

// DocumentType classifies a closed document.
type DocumentType string

const (
	DocTicket         DocumentType = "ticket"
	DocRecharge       DocumentType = "recharge"
	DocBalancePayment DocumentType = "balance_payment"
	DocPartialReceipt DocumentType = "partial_receipt"
)

// PaymentMethod is the instrument a document was paid with.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentBalance PaymentMethod = "balance"
)

// ClosedTicket is an immutable ledger record. One settlement may produce one
// or two of them.
type ClosedTicket struct {
	ID            string
	TicketID      string
	OrderID       string
	TableNumber   string
	CustomerID    string
	CustomerName  string
	Items         []order.Line
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	DocumentType  DocumentType
	TaxBreakdown  []tax.Breakdown

	BalanceAmount        decimal.NullDecimal
	RemainingAmount      decimal.NullDecimal
	TotalPartialPayments decimal.NullDecimal
	Tendered             decimal.NullDecimal
	Change               decimal.NullDecimal

	ClosedAt time.Time
}

// Matches reports whether the record matches a free-text query. The match is
// a case-insensitive substring test over the ticket id, table number,
// customer name and product names. An empty query matches everything.
func (t *ClosedTicket) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if contains(t.TicketID, q) || contains(t.TableNumber, q) || contains(t.CustomerName, q) {
		return true
	}
	for _, it := range t.Items {
		if contains(it.ProductName, q) {
			return true
		}
	}
	return false
}

func contains(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}

// Store persists closed documents.
//
// Search returns records most recent first. Append must fail with
// ErrDuplicate if a record with the same ID already exists; records are never
// updated. Clear wipes the whole ledger and is reserved for reset flows.
type Store interface {
	Append(ctx context.Context, t *ClosedTicket) error
	Get(ctx context.Context, id string) (*ClosedTicket, error)
	Search(ctx context.Context, query string) ([]ClosedTicket, error)
	Clear(ctx context.Context) error
}
