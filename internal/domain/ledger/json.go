package ledger

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/tax"
)

// Encode writes t as a JSON object. Amounts are written as JSON numbers with
// two decimals.
func (t *ClosedTicket) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(t.ID)
	e.FieldStart("ticket_id")
	e.Str(t.TicketID)
	e.FieldStart("order_id")
	e.Str(t.OrderID)
	e.FieldStart("table_number")
	e.Str(t.TableNumber)
	if t.CustomerID != "" {
		e.FieldStart("customer_id")
		e.Str(t.CustomerID)
		e.FieldStart("customer_name")
		e.Str(t.CustomerName)
	}
	e.FieldStart("document_type")
	e.Str(string(t.DocumentType))
	e.FieldStart("payment_method")
	e.Str(string(t.PaymentMethod))

	e.FieldStart("items")
	e.ArrStart()
	for i := range t.Items {
		encodeLine(e, &t.Items[i])
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	EncodeMoney(e, t.Subtotal)
	e.FieldStart("tax")
	EncodeMoney(e, t.Tax)
	e.FieldStart("total")
	EncodeMoney(e, t.Total)

	if len(t.TaxBreakdown) > 0 {
		e.FieldStart("tax_breakdown")
		e.ArrStart()
		for _, b := range t.TaxBreakdown {
			e.ObjStart()
			e.FieldStart("tax_name")
			e.Str(b.TaxName)
			e.FieldStart("tax_rate")
			e.Raw([]byte(b.TaxRate.String()))
			e.FieldStart("subtotal")
			EncodeMoney(e, b.Subtotal)
			e.FieldStart("tax_amount")
			EncodeMoney(e, b.TaxAmount)
			e.ObjEnd()
		}
		e.ArrEnd()
	}

	encodeOptional(e, "balance_amount", t.BalanceAmount)
	encodeOptional(e, "remaining_amount", t.RemainingAmount)
	encodeOptional(e, "total_partial_payments", t.TotalPartialPayments)
	encodeOptional(e, "tendered", t.Tendered)
	encodeOptional(e, "change", t.Change)

	e.FieldStart("closed_at")
	e.Str(t.ClosedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

// Decode reads t from a JSON object produced by Encode. Unknown fields are
// skipped.
func (t *ClosedTicket) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			t.ID, err = d.Str()
		case "ticket_id":
			t.TicketID, err = d.Str()
		case "order_id":
			t.OrderID, err = d.Str()
		case "table_number":
			t.TableNumber, err = d.Str()
		case "customer_id":
			t.CustomerID, err = d.Str()
		case "customer_name":
			t.CustomerName, err = d.Str()
		case "document_type":
			var s string
			s, err = d.Str()
			t.DocumentType = DocumentType(s)
		case "payment_method":
			var s string
			s, err = d.Str()
			t.PaymentMethod = PaymentMethod(s)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var l order.Line
				if err := decodeLine(d, &l); err != nil {
					return err
				}
				t.Items = append(t.Items, l)
				return nil
			})
		case "subtotal":
			t.Subtotal, err = DecodeAmount(d)
		case "tax":
			t.Tax, err = DecodeAmount(d)
		case "total":
			t.Total, err = DecodeAmount(d)
		case "tax_breakdown":
			err = d.Arr(func(d *jx.Decoder) error {
				var b tax.Breakdown
				if err := decodeBreakdown(d, &b); err != nil {
					return err
				}
				t.TaxBreakdown = append(t.TaxBreakdown, b)
				return nil
			})
		case "balance_amount":
			t.BalanceAmount, err = decodeOptional(d)
		case "remaining_amount":
			t.RemainingAmount, err = decodeOptional(d)
		case "total_partial_payments":
			t.TotalPartialPayments, err = decodeOptional(d)
		case "tendered":
			t.Tendered, err = decodeOptional(d)
		case "change":
			t.Change, err = decodeOptional(d)
		case "closed_at":
			var s string
			if s, err = d.Str(); err == nil {
				t.ClosedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

func encodeLine(e *jx.Encoder, l *order.Line) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Str(l.ProductID)
	e.FieldStart("product_name")
	e.Str(l.ProductName)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("unit_price")
	EncodeMoney(e, l.UnitPrice)
	e.FieldStart("total_price")
	EncodeMoney(e, l.TotalPrice)
	if l.TaxRate != nil {
		e.FieldStart("tax_rate")
		e.Raw([]byte(l.TaxRate.String()))
		e.FieldStart("tax_name")
		e.Str(l.TaxName)
	}
	e.ObjEnd()
}

func decodeLine(d *jx.Decoder, l *order.Line) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			l.ProductID, err = d.Str()
		case "product_name":
			l.ProductName, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "unit_price":
			l.UnitPrice, err = DecodeAmount(d)
		case "total_price":
			l.TotalPrice, err = DecodeAmount(d)
		case "tax_rate":
			var rate decimal.Decimal
			if rate, err = DecodeAmount(d); err == nil {
				l.TaxRate = &rate
			}
		case "tax_name":
			l.TaxName, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
}

func decodeBreakdown(d *jx.Decoder, b *tax.Breakdown) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "tax_name":
			b.TaxName, err = d.Str()
		case "tax_rate":
			b.TaxRate, err = DecodeAmount(d)
		case "subtotal":
			b.Subtotal, err = DecodeAmount(d)
		case "tax_amount":
			b.TaxAmount, err = DecodeAmount(d)
		default:
			return d.Skip()
		}
		return err
	})
}

func encodeOptional(e *jx.Encoder, field string, v decimal.NullDecimal) {
	if !v.Valid {
		return
	}
	e.FieldStart(field)
	EncodeMoney(e, v.Decimal)
}

func decodeOptional(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := DecodeAmount(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// EncodeMoney writes v as a JSON number with two decimals.
func EncodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.StringFixed(2)))
}

// DecodeAmount reads a decimal written either as a JSON number or as a
// numeric string.
func DecodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("expected amount, got %s", tt)
	}
}

// EncodeLine writes an order line.
func EncodeLine(e *jx.Encoder, l *order.Line) {
	encodeLine(e, l)
}

// DecodeLine reads an order line.
func DecodeLine(d *jx.Decoder, l *order.Line) error {
	return decodeLine(d, l)
}

// MarshalJSON implements json.Marshaler.
func (t *ClosedTicket) MarshalJSON() ([]byte, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	t.Encode(e)
	return append([]byte(nil), e.Bytes()...), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ClosedTicket) UnmarshalJSON(data []byte) error {
	return t.Decode(jx.DecodeBytes(data))
}
