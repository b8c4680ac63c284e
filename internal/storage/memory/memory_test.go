package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-settle/internal/domain/customer"
	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/sequence"
	"github.com/xenking/oolio-settle/internal/domain/settlement"
)

func TestCounters(t *testing.T) {
	ctx := context.Background()
	c := NewCounters()

	for want := int64(1); want <= 3; want++ {
		v, err := c.Increment(ctx, sequence.Ticket)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	v, err := c.Increment(ctx, sequence.Receipt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	first := &ledger.ClosedTicket{ID: "a", TicketID: "000001", TableNumber: "3",
		Items: []order.Line{{ProductName: "Paella"}}}
	second := &ledger.ClosedTicket{ID: "b", TicketID: "000002", CustomerName: "Ana"}

	require.NoError(t, l.Append(ctx, first))
	require.NoError(t, l.Append(ctx, second))
	require.ErrorIs(t, l.Append(ctx, first), ledger.ErrDuplicate)

	// Stored records do not alias the caller's.
	first.Items[0].ProductName = "changed"
	got, err := l.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Paella", got.Items[0].ProductName)

	all, err := l.Search(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID, "most recent first")

	found, err := l.Search(ctx, "paella")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].ID)

	require.NoError(t, l.Clear(ctx))
	_, err = l.Get(ctx, "a")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	o := NewOrders()

	_, err := o.Get(ctx, "o-1")
	require.ErrorIs(t, err, order.ErrNotFound)

	require.NoError(t, o.Put(ctx, &order.Order{ID: "o-1", Kind: order.KindTable, Total: decimal.NewFromInt(40)}))

	p := order.PartialPayment{ID: "pp-1", OrderID: "o-1", Amount: decimal.NewFromInt(15)}
	require.NoError(t, o.RecordPartialPayment(ctx, "o-1", p))
	require.NoError(t, o.RecordPartialPayment(ctx, "o-1", p))

	payments, err := o.PartialPayments(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)

	require.NoError(t, o.Clear(ctx, "o-1"))
	_, err = o.Get(ctx, "o-1")
	require.ErrorIs(t, err, order.ErrNotFound)
	require.ErrorIs(t, o.Clear(ctx, "o-1"), order.ErrNotFound)

	// Payments are not taken on a cleared order, replays are still accepted.
	late := order.PartialPayment{ID: "pp-2", OrderID: "o-1", Amount: decimal.NewFromInt(5)}
	require.ErrorIs(t, o.RecordPartialPayment(ctx, "o-1", late), order.ErrNotFound)
	require.ErrorIs(t, o.RecordPartialPayment(ctx, "missing", late), order.ErrNotFound)
	require.NoError(t, o.RecordPartialPayment(ctx, "o-1", p))
	payments, err = o.PartialPayments(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestCustomers(t *testing.T) {
	ctx := context.Background()
	c := NewCustomers()

	require.ErrorIs(t, c.SetBalance(ctx, "missing", decimal.Zero), customer.ErrNotFound)

	require.NoError(t, c.Put(ctx, &customer.Customer{ID: "c-1", Name: "Ana", Balance: decimal.NewFromInt(30)}))
	require.NoError(t, c.SetBalance(ctx, "c-1", decimal.NewFromInt(12)))

	got, err := c.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(12).Equal(got.Balance))
	assert.Equal(t, "Ana", got.Name)
}

func TestIntents(t *testing.T) {
	ctx := context.Background()
	s := NewIntents()

	require.ErrorIs(t, s.Update(ctx, &settlement.Intent{ID: "x"}), settlement.ErrIntentNotFound)

	for _, id := range []string{"i-1", "i-2", "i-3"} {
		require.NoError(t, s.Create(ctx, &settlement.Intent{ID: id, Status: settlement.IntentPending}))
	}
	require.NoError(t, s.Update(ctx, &settlement.Intent{ID: "i-2", Status: settlement.IntentCommitted}))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "i-1", pending[0].ID)
	assert.Equal(t, "i-3", pending[1].ID)

	got, err := s.Get(ctx, "i-2")
	require.NoError(t, err)
	assert.Equal(t, settlement.IntentCommitted, got.Status)
}
