package ledger

import (
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/tax"
)

func newTestTicket() ClosedTicket {
	rate := decimal.RequireFromString("0.10")
	return ClosedTicket{
		ID:           "doc-1",
		TicketID:     "000042",
		OrderID:      "o-1",
		TableNumber:  "12",
		CustomerID:   "c-1",
		CustomerName: "Ana Torres",
		Items: []order.Line{
			{
				ProductID:   "p-1",
				ProductName: "Tortilla",
				Quantity:    2,
				UnitPrice:   decimal.RequireFromString("4.40"),
				TotalPrice:  decimal.RequireFromString("8.80"),
				TaxRate:     &rate,
				TaxName:     "IVA",
			},
			{
				ProductID:   "p-2",
				ProductName: "Gift card",
				Quantity:    1,
				UnitPrice:   decimal.RequireFromString("10"),
				TotalPrice:  decimal.RequireFromString("10"),
			},
		},
		Subtotal:      decimal.RequireFromString("18.00"),
		Tax:           decimal.RequireFromString("0.80"),
		Total:         decimal.RequireFromString("18.80"),
		PaymentMethod: PaymentCash,
		DocumentType:  DocTicket,
		TaxBreakdown: []tax.Breakdown{{
			TaxName:   "IVA",
			TaxRate:   rate,
			Subtotal:  decimal.RequireFromString("8.00"),
			TaxAmount: decimal.RequireFromString("0.80"),
		}},
		TotalPartialPayments: decimal.NewNullDecimal(decimal.RequireFromString("5")),
		Tendered:             decimal.NewNullDecimal(decimal.RequireFromString("20")),
		Change:               decimal.NewNullDecimal(decimal.RequireFromString("1.20")),
		ClosedAt:             time.Date(2024, 3, 9, 21, 30, 15, 0, time.UTC),
	}
}

func TestClosedTicket_Matches(t *testing.T) {
	ticket := newTestTicket()

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"000042", true},
		{"0042", true},
		{"12", true},
		{"ana", true},
		{"TORRES", true},
		{"tortilla", true},
		{"gift", true},
		{"paella", false},
		{"c-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ticket.Matches(tt.query))
		})
	}
}

func TestClosedTicket_JSON(t *testing.T) {
	orig := newTestTicket()

	data, err := orig.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total":18.80`)
	assert.Contains(t, string(data), `"tax_rate":0.1`)
	assert.NotContains(t, string(data), "balance_amount")

	var got ClosedTicket
	require.NoError(t, got.UnmarshalJSON(data))

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.TicketID, got.TicketID)
	assert.Equal(t, orig.CustomerName, got.CustomerName)
	assert.Equal(t, orig.DocumentType, got.DocumentType)
	assert.True(t, orig.ClosedAt.Equal(got.ClosedAt))
	assert.True(t, orig.Total.Equal(got.Total))

	require.Len(t, got.Items, 2)
	require.NotNil(t, got.Items[0].TaxRate)
	assert.True(t, orig.Items[0].TaxRate.Equal(*got.Items[0].TaxRate))
	assert.Nil(t, got.Items[1].TaxRate)

	require.Len(t, got.TaxBreakdown, 1)
	assert.True(t, orig.TaxBreakdown[0].TaxAmount.Equal(got.TaxBreakdown[0].TaxAmount))

	assert.False(t, got.BalanceAmount.Valid)
	assert.False(t, got.RemainingAmount.Valid)
	require.True(t, got.Change.Valid)
	assert.True(t, orig.Change.Decimal.Equal(got.Change.Decimal))
}

func TestDecodeAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{`12.5`, "12.5", false},
		{`"12.50"`, "12.5", false},
		{`-3`, "-3", false},
		{`"abc"`, "", true},
		{`true`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := DecodeAmount(jx.DecodeStr(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got))
		})
	}
}
