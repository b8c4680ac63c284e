// Package tax derives the per-rate decomposition printed on receipts.
package tax

import "github.com/shopspring/decimal"

// Line is the tax-relevant view of an order line. UnitPrice is gross, tax
// included; TaxRate is a fraction (0.21 for 21%).
type Line struct {
	Quantity  int
	UnitPrice decimal.Decimal
	TaxRate   *decimal.Decimal
	TaxName   string
}

// Breakdown is the subtotal and tax collected at a single rate.
type Breakdown struct {
	TaxName   string          `json:"tax_name"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
}

// Total returns Subtotal + TaxAmount.
func (b Breakdown) Total() decimal.Decimal {
	return b.Subtotal.Add(b.TaxAmount)
}

type groupKey struct {
	name string
	rate string
}

type group struct {
	name  string
	rate  decimal.Decimal
	base  decimal.Decimal
	gross decimal.Decimal
}

// ComputeBreakdown groups lines by (TaxName, TaxRate) in first-seen order.
// For every group the subtotal is the sum of unitPrice/(1+rate)*quantity and
// the tax is the gross amount minus that subtotal. Lines without a rate are
// ignored; if none carries a rate the result is empty.
func ComputeBreakdown(lines []Line) []Breakdown {
	var (
		order  []groupKey
		groups = make(map[groupKey]*group)
	)
	for _, l := range lines {
		if l.TaxRate == nil {
			continue
		}
		rate := *l.TaxRate
		key := groupKey{name: l.TaxName, rate: rate.String()}
		g, ok := groups[key]
		if !ok {
			g = &group{name: l.TaxName, rate: rate}
			groups[key] = g
			order = append(order, key)
		}

		qty := decimal.NewFromInt(int64(l.Quantity))
		base := l.UnitPrice.Div(decimal.NewFromInt(1).Add(rate))
		g.base = g.base.Add(base.Mul(qty))
		g.gross = g.gross.Add(l.UnitPrice.Mul(qty))
	}

	out := make([]Breakdown, 0, len(order))
	for _, key := range order {
		g := groups[key]
		subtotal := g.base.Round(2)
		out = append(out, Breakdown{
			TaxName:   g.name,
			TaxRate:   g.rate,
			Subtotal:  subtotal,
			TaxAmount: g.gross.Round(2).Sub(subtotal),
		})
	}
	return out
}
