package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/tax"
)

// ErrNotFound is returned when an open order does not exist.
var ErrNotFound = errors.New("order not found")

// Kind distinguishes table bills from standalone tickets.
type Kind string

const (
	// KindTable is a bill attached to a salon table; it may be settled in parts.
	KindTable Kind = "table"
	// KindTakeaway is a standalone take-away ticket.
	KindTakeaway Kind = "takeaway"
	// KindRecharge tops up a customer's stored balance.
	KindRecharge Kind = "recharge"
)

// Instrument is a payment method that can settle the part of a bill not
// covered by the customer's stored balance.
type Instrument string

const (
	InstrumentCash Instrument = "cash"
	InstrumentCard Instrument = "card"
)

// Valid reports whether i is cash or card.
func (i Instrument) Valid() bool {
	return i == InstrumentCash || i == InstrumentCard
}

// Order is an open bill as supplied by the order aggregator. The settlement
// core treats it as read-only.
type Order struct {
	ID          string
	TableNumber string
	Kind        Kind
	CustomerID  string
	Lines       []Line
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	// Total is Subtotal + Tax and may be negative for refunds.
	Total decimal.Decimal
}

// Standalone reports whether the order forbids partial settlement.
func (o *Order) Standalone() bool {
	return o.Kind == KindTakeaway || o.Kind == KindRecharge
}

// TaxLines converts the order lines for tax.ComputeBreakdown.
func (o *Order) TaxLines() []tax.Line {
	out := make([]tax.Line, len(o.Lines))
	for i, l := range o.Lines {
		out[i] = tax.Line{
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			TaxRate:   l.TaxRate,
			TaxName:   l.TaxName,
		}
	}
	return out
}

// Line represents a single line item of an order.
type Line struct {
	ProductID   string           `json:"product_id"`
	ProductName string           `json:"product_name"`
	Quantity    int              `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TotalPrice  decimal.Decimal  `json:"total_price"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
	TaxName     string           `json:"tax_name,omitempty"`
}

// PartialPayment records money collected against a still-open order.
type PartialPayment struct {
	ID         string
	OrderID    string
	Amount     decimal.Decimal
	Instrument Instrument
	ReceiptID  string
	CreatedAt  time.Time
}

// Paid returns the sum of all partial payments.
func Paid(payments []PartialPayment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// Pending returns what is still owed on o after the given partial payments.
func Pending(o *Order, payments []PartialPayment) decimal.Decimal {
	return o.Total.Sub(Paid(payments))
}

// Aggregator is the order collaborator the settlement core reads bills from
// and reports outcomes to.
type Aggregator interface {
	Get(ctx context.Context, id string) (*Order, error)
	PartialPayments(ctx context.Context, orderID string) ([]PartialPayment, error)
	// Clear marks the order as settled and removes it from the open bills.
	Clear(ctx context.Context, orderID string) error
	// RecordPartialPayment appends p to the order. Recording a payment whose
	// ID is already present is a no-op.
	RecordPartialPayment(ctx context.Context, orderID string, p PartialPayment) error
}

// ComputeTotals sets Total to the sum of the line totals and splits it into
// Subtotal and Tax using the per-rate breakdown. Lines without a rate count
// fully towards Subtotal.
func (o *Order) ComputeTotals() {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.TotalPrice)
	}
	taxAmount := decimal.Zero
	for _, b := range tax.ComputeBreakdown(o.TaxLines()) {
		taxAmount = taxAmount.Add(b.TaxAmount)
	}
	o.Total = total
	o.Tax = taxAmount
	o.Subtotal = total.Sub(taxAmount)
}
