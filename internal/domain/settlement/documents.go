package settlement

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/sequence"
	"github.com/xenking/oolio-settle/internal/domain/tax"
)

// namespaces returns which document numbers the intent needs.
func (in *Intent) namespaces() (receipt, ticket bool) {
	a := in.Allocation
	switch in.Kind {
	case KindPartial:
		return true, false
	case KindRecharge:
		return false, true
	default:
		return a.BalanceUsed.IsPositive(), !a.RemainingDue.IsZero()
	}
}

// needsNumber reports whether ns is used by the intent.
func (in *Intent) needsNumber(ns sequence.Namespace) bool {
	receipt, ticket := in.namespaces()
	if ns == sequence.Receipt {
		return receipt
	}
	return ticket
}

// documents derives the ledger records of the intent. Record ids are derived
// from the intent id, so rebuilding them on resume yields the same records.
func (in *Intent) documents() []ledger.ClosedTicket {
	a := in.Allocation
	var docs []ledger.ClosedTicket

	switch in.Kind {
	case KindPartial:
		d := in.document(ledger.DocPartialReceipt, in.ReceiptID, a.Received, paymentMethod(a.Instrument))
		d.RemainingAmount = decimal.NewNullDecimal(a.NewPending)
		d.TotalPartialPayments = decimal.NewNullDecimal(in.PriorPaid.Add(a.Received))
		d.Tendered = decimal.NewNullDecimal(a.Tendered)
		docs = append(docs, d)

	case KindRecharge:
		d := in.document(ledger.DocRecharge, in.TicketID, a.Received, paymentMethod(a.Instrument))
		d.Tendered = decimal.NewNullDecimal(a.Tendered)
		d.Change = decimal.NewNullDecimal(a.Change)
		docs = append(docs, d)

	default:
		if a.BalanceUsed.IsPositive() {
			d := in.document(ledger.DocBalancePayment, in.ReceiptID, a.BalanceUsed, ledger.PaymentBalance)
			d.BalanceAmount = decimal.NewNullDecimal(a.BalanceUsed)
			d.RemainingAmount = decimal.NewNullDecimal(a.RemainingDue)
			docs = append(docs, d)
		}
		if !a.RemainingDue.IsZero() {
			d := in.document(ledger.DocTicket, in.TicketID, a.RemainingDue, paymentMethod(a.Instrument))
			d.TaxBreakdown = tax.ComputeBreakdown(in.Order.TaxLines())
			if a.BalanceUsed.IsPositive() {
				d.BalanceAmount = decimal.NewNullDecimal(a.BalanceUsed)
			}
			if in.PriorPaid.IsPositive() {
				d.TotalPartialPayments = decimal.NewNullDecimal(in.PriorPaid)
			}
			if a.RemainingDue.IsPositive() {
				d.Tendered = decimal.NewNullDecimal(a.Tendered)
				d.Change = decimal.NewNullDecimal(a.Change)
			}
			docs = append(docs, d)
		}
	}
	return docs
}

func (in *Intent) document(typ ledger.DocumentType, number string, total decimal.Decimal, method ledger.PaymentMethod) ledger.ClosedTicket {
	subtotal, taxAmount := apportion(&in.Order, total)
	if typ == ledger.DocRecharge {
		subtotal, taxAmount = total, decimal.Zero
	}
	items := make([]order.Line, len(in.Order.Lines))
	copy(items, in.Order.Lines)

	return ledger.ClosedTicket{
		ID:            recordID(in.ID, string(typ)),
		TicketID:      number,
		OrderID:       in.Order.ID,
		TableNumber:   in.Order.TableNumber,
		CustomerID:    in.CustomerID,
		CustomerName:  in.CustomerName,
		Items:         items,
		Subtotal:      subtotal,
		Tax:           taxAmount,
		Total:         total,
		PaymentMethod: method,
		DocumentType:  typ,
		ClosedAt:      in.CreatedAt,
	}
}

// partialPayment is the order-side record of a partial intent.
func (in *Intent) partialPayment() order.PartialPayment {
	return order.PartialPayment{
		ID:         recordID(in.ID, "partial_payment"),
		OrderID:    in.Order.ID,
		Amount:     in.Allocation.Received,
		Instrument: in.Allocation.Instrument,
		ReceiptID:  in.ReceiptID,
		CreatedAt:  in.CreatedAt,
	}
}

// apportion splits total into subtotal and tax in the proportion of the
// whole order.
func apportion(o *order.Order, total decimal.Decimal) (subtotal, taxAmount decimal.Decimal) {
	if total.Equal(o.Total) {
		return o.Subtotal, o.Tax
	}
	if o.Total.IsZero() {
		return total, decimal.Zero
	}
	subtotal = o.Subtotal.Mul(total).Div(o.Total).Round(2)
	return subtotal, total.Sub(subtotal)
}

func recordID(intentID, kind string) string {
	space, err := uuid.Parse(intentID)
	if err != nil {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(intentID+"/"+kind)).String()
	}
	return uuid.NewSHA1(space, []byte(kind)).String()
}

func paymentMethod(i order.Instrument) ledger.PaymentMethod {
	if i == order.InstrumentCard {
		return ledger.PaymentCard
	}
	return ledger.PaymentCash
}
