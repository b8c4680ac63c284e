// Package render prints closed documents as fixed-width text for 80mm
// thermal printers.
package render

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/settlement"
)

// DefaultWidth is the column count of an 80mm printer with the standard font.
const DefaultWidth = 42

const minWidth = 24

var _ settlement.Renderer = (*Receipt)(nil)

// Config controls the receipt layout.
type Config struct {
	Width int
	// Venue lines are printed centered at the top of every document.
	Venue []string
	// Footer is printed centered at the bottom. Empty prints nothing.
	Footer string
}

// Receipt renders ledger records. Output depends only on the record and the
// configuration, so reprints are byte-identical to the original.
type Receipt struct {
	width  int
	venue  []string
	footer string
}

// New creates a Receipt renderer.
func New(cfg Config) (*Receipt, error) {
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Width < minWidth {
		return nil, errors.Errorf("receipt width %d is below minimum %d", cfg.Width, minWidth)
	}
	return &Receipt{
		width:  cfg.Width,
		venue:  append([]string(nil), cfg.Venue...),
		footer: cfg.Footer,
	}, nil
}

// Render implements settlement.Renderer.
func (r *Receipt) Render(t *ledger.ClosedTicket) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil document")
	}
	if t.TicketID == "" {
		return nil, errors.Errorf("document %s has no number", t.ID)
	}

	var b bytes.Buffer
	for _, l := range r.venue {
		r.center(&b, l)
	}
	r.rule(&b, '=')
	r.center(&b, title(t.DocumentType))
	r.row(&b, "No.", t.TicketID)
	r.row(&b, "Date", t.ClosedAt.UTC().Format("2006-01-02 15:04"))
	if t.TableNumber != "" {
		r.row(&b, "Table", t.TableNumber)
	}
	if t.CustomerName != "" {
		r.row(&b, "Customer", t.CustomerName)
	}
	r.rule(&b, '-')

	if t.DocumentType == ledger.DocRecharge {
		r.row(&b, "Balance top-up", money(t.Total))
	} else {
		for _, it := range t.Items {
			label := strconv.Itoa(it.Quantity) + " x " + it.ProductName
			r.row(&b, label, money(it.TotalPrice))
		}
	}
	r.rule(&b, '-')

	r.row(&b, "Subtotal", money(t.Subtotal))
	r.row(&b, "Tax", money(t.Tax))
	r.row(&b, "TOTAL", money(t.Total))

	if len(t.TaxBreakdown) > 0 {
		r.rule(&b, '-')
		for _, tb := range t.TaxBreakdown {
			name := tb.TaxName
			if name == "" {
				name = "Tax"
			}
			r.row(&b, name+" "+tb.TaxRate.Shift(2).String()+"%", money(tb.Subtotal)+" "+money(tb.TaxAmount))
		}
	}

	r.rule(&b, '-')
	optional(r, &b, "Balance applied", t.BalanceAmount)
	optional(r, &b, "Paid on account", t.TotalPartialPayments)
	optional(r, &b, "Remaining", t.RemainingAmount)
	r.row(&b, "Payment", strings.ToUpper(string(t.PaymentMethod)))
	optional(r, &b, "Tendered", t.Tendered)
	if t.Change.Valid && t.Change.Decimal.IsPositive() {
		r.row(&b, "Change", money(t.Change.Decimal))
	}
	r.rule(&b, '=')
	if r.footer != "" {
		r.center(&b, r.footer)
	}
	return b.Bytes(), nil
}

func title(typ ledger.DocumentType) string {
	switch typ {
	case ledger.DocRecharge:
		return "BALANCE RECHARGE"
	case ledger.DocBalancePayment:
		return "BALANCE PAYMENT"
	case ledger.DocPartialReceipt:
		return "PARTIAL PAYMENT"
	default:
		return "TICKET"
	}
}

func optional(r *Receipt, b *bytes.Buffer, label string, v decimal.NullDecimal) {
	if v.Valid {
		r.row(b, label, money(v.Decimal))
	}
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}

// row prints label left and value right aligned. A label that does not fit
// is cut so the value always stays intact.
func (r *Receipt) row(b *bytes.Buffer, label, value string) {
	room := r.width - utf8.RuneCountInString(value) - 1
	if room < 1 {
		b.WriteString(value)
		b.WriteByte('\n')
		return
	}
	label = truncate(label, room)
	b.WriteString(label)
	b.WriteString(strings.Repeat(" ", r.width-utf8.RuneCountInString(label)-utf8.RuneCountInString(value)))
	b.WriteString(value)
	b.WriteByte('\n')
}

func (r *Receipt) center(b *bytes.Buffer, s string) {
	s = truncate(s, r.width)
	pad := (r.width - utf8.RuneCountInString(s)) / 2
	b.WriteString(strings.Repeat(" ", pad))
	b.WriteString(s)
	b.WriteByte('\n')
}

func (r *Receipt) rule(b *bytes.Buffer, c byte) {
	b.Write(bytes.Repeat([]byte{c}, r.width))
	b.WriteByte('\n')
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
