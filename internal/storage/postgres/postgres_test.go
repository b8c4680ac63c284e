//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/oolio-settle/internal/domain/customer"
	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/sequence"
	"github.com/xenking/oolio-settle/internal/domain/settlement"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "settle",
				"POSTGRES_PASSWORD": "settle",
				"POSTGRES_DB":       "settle",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://settle:settle@%s:%s/settle?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Applying the schema twice must be harmless.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations (second run): %v", err)
	}

	return m.Run()
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCounterStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewCounterStore(testPool)
	ns := sequence.Namespace("test-" + t.Name())

	const workers, perWorker = 8, 25
	seen := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				v, err := store.Increment(ctx, ns)
				if !assert.NoError(t, err) {
					return
				}
				seen <- v
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]struct{})
	for v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, workers*perWorker)
	for i := int64(1); i <= workers*perWorker; i++ {
		assert.Contains(t, unique, i)
	}
}

func TestCustomerStore(t *testing.T) {
	ctx := context.Background()
	store := NewCustomerStore(testPool)

	_, err := store.Get(ctx, "nobody")
	require.ErrorIs(t, err, customer.ErrNotFound)
	require.ErrorIs(t, store.SetBalance(ctx, "nobody", d("1")), customer.ErrNotFound)

	require.NoError(t, store.Upsert(ctx, &customer.Customer{ID: "cs-1", Name: "Ana", Balance: d("30.00")}))
	require.NoError(t, store.SetBalance(ctx, "cs-1", d("12.50")))

	got, err := store.Get(ctx, "cs-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.True(t, d("12.50").Equal(got.Balance))
}

func TestOrderStore(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore(testPool)

	rate := d("0.10")
	o := &order.Order{
		ID: "os-1", TableNumber: "3", Kind: order.KindTable,
		Lines: []order.Line{{
			ProductID: "p-1", ProductName: "Paella", Quantity: 2,
			UnitPrice: d("11.00"), TotalPrice: d("22.00"), TaxRate: &rate, TaxName: "IVA",
		}},
	}
	o.ComputeTotals()
	require.NoError(t, store.Upsert(ctx, o))

	got, err := store.Get(ctx, "os-1")
	require.NoError(t, err)
	assert.True(t, d("22.00").Equal(got.Total))
	require.Len(t, got.Lines, 1)
	require.NotNil(t, got.Lines[0].TaxRate)
	assert.True(t, rate.Equal(*got.Lines[0].TaxRate))

	p := order.PartialPayment{
		ID: "pp-1", OrderID: "os-1", Amount: d("5.00"),
		Instrument: order.InstrumentCash, ReceiptID: "R000001", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.RecordPartialPayment(ctx, "os-1", p))
	require.NoError(t, store.RecordPartialPayment(ctx, "os-1", p))
	payments, err := store.PartialPayments(ctx, "os-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, d("5.00").Equal(payments[0].Amount))

	require.NoError(t, store.Clear(ctx, "os-1"))
	_, err = store.Get(ctx, "os-1")
	require.ErrorIs(t, err, order.ErrNotFound)
	require.ErrorIs(t, store.Clear(ctx, "os-1"), order.ErrNotFound)

	late := p
	late.ID = "pp-2"
	require.ErrorIs(t, store.RecordPartialPayment(ctx, "os-1", late), order.ErrNotFound)
	require.ErrorIs(t, store.RecordPartialPayment(ctx, "nope", late), order.ErrNotFound)
	require.NoError(t, store.RecordPartialPayment(ctx, "os-1", p))

	// Upsert reopens a settled order.
	require.NoError(t, store.Upsert(ctx, o))
	_, err = store.Get(ctx, "os-1")
	require.NoError(t, err)
}

func TestLedgerStore(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(testPool)
	require.NoError(t, store.Clear(ctx))

	first := &ledger.ClosedTicket{
		ID: "ls-1", TicketID: "000101", OrderID: "o-1", TableNumber: "4",
		Items:    []order.Line{{ProductName: "Croquetas_100%", Quantity: 1, TotalPrice: d("6")}},
		Total:    d("6.00"),
		ClosedAt: time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC),
	}
	second := &ledger.ClosedTicket{
		ID: "ls-2", TicketID: "R000101", CustomerID: "c-1", CustomerName: "Luis",
		Total:         d("4.00"),
		BalanceAmount: decimal.NewNullDecimal(d("4.00")),
		ClosedAt:      time.Date(2024, 3, 9, 20, 5, 0, 0, time.UTC),
	}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))
	require.ErrorIs(t, store.Append(ctx, first), ledger.ErrDuplicate)

	got, err := store.Get(ctx, "ls-2")
	require.NoError(t, err)
	assert.Equal(t, "Luis", got.CustomerName)
	assert.True(t, got.BalanceAmount.Valid)

	all, err := store.Search(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ls-2", all[0].ID)

	tests := []struct {
		query string
		want  []string
	}{
		{"croquetas", []string{"ls-1"}},
		{"_100%", []string{"ls-1"}},
		{"luis", []string{"ls-2"}},
		{"0101", []string{"ls-2", "ls-1"}},
		{"1%0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			found, err := store.Search(ctx, tt.query)
			require.NoError(t, err)
			var ids []string
			for _, f := range found {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	var inserted []string
	require.NoError(t, store.Each(ctx, func(rec *ledger.ClosedTicket) error {
		inserted = append(inserted, rec.ID)
		return nil
	}))
	assert.Equal(t, []string{"ls-1", "ls-2"}, inserted)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx, "ls-1")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestIntentStore(t *testing.T) {
	ctx := context.Background()
	store := NewIntentStore(testPool)

	in := &settlement.Intent{
		ID:        "6f1c2a53-2b51-4d3e-9b0a-3f1f5f0f4a01",
		Kind:      settlement.KindFull,
		Status:    settlement.IntentPending,
		Order:     order.Order{ID: "o-int", Kind: order.KindTable, Total: d("10")},
		TicketID:  "000900",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, in))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Contains(t, intentIDs(pending), in.ID)

	in.BalanceBefore = decimal.NewNullDecimal(d("30"))
	in.LedgerApplied = true
	require.NoError(t, store.Update(ctx, in))

	got, err := store.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.True(t, got.LedgerApplied)
	assert.True(t, d("30").Equal(got.BalanceBefore.Decimal))
	assert.Equal(t, "000900", got.TicketID)

	in.Status = settlement.IntentCommitted
	require.NoError(t, store.Update(ctx, in))
	pending, err = store.ListPending(ctx)
	require.NoError(t, err)
	assert.NotContains(t, intentIDs(pending), in.ID)

	require.ErrorIs(t, store.Update(ctx, &settlement.Intent{ID: "6f1c2a53-0000-0000-0000-000000000000"}), settlement.ErrIntentNotFound)
	_, err = store.Get(ctx, "6f1c2a53-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, settlement.ErrIntentNotFound)
}

func intentIDs(in []settlement.Intent) []string {
	out := make([]string, len(in))
	for i := range in {
		out[i] = in[i].ID
	}
	return out
}

func TestSettlementOverPostgres(t *testing.T) {
	ctx := context.Background()
	customers := NewCustomerStore(testPool)
	orders := NewOrderStore(testPool)

	require.NoError(t, customers.Upsert(ctx, &customer.Customer{ID: "e2e-ana", Name: "Ana", Balance: d("30.00")}))
	o := &order.Order{
		ID: "e2e-1", TableNumber: "9", Kind: order.KindTable, CustomerID: "e2e-ana",
		Lines: []order.Line{{ProductID: "p", ProductName: "Menu", Quantity: 1, UnitPrice: d("50.00"), TotalPrice: d("50.00")}},
	}
	o.ComputeTotals()
	require.NoError(t, orders.Upsert(ctx, o))

	svc, err := settlement.NewService(settlement.Dependencies{
		Orders:    orders,
		Customers: customers,
		Sequences: sequence.NewGenerator(NewCounterStore(testPool)),
		Ledger:    NewLedgerStore(testPool),
		Intents:   NewIntentStore(testPool),
		Renderer:  plainRenderer{},
	}, settlement.Options{Wait: func(time.Duration) {}})
	require.NoError(t, err)

	sess, err := svc.Submit(ctx, settlement.Request{
		OrderID:    "e2e-1",
		UseBalance: true,
		Instrument: order.InstrumentCard,
		Tendered:   d("20.00"),
	})
	require.NoError(t, err)
	require.Len(t, sess.Result.Documents, 2)

	c, err := customers.Get(ctx, "e2e-ana")
	require.NoError(t, err)
	assert.True(t, c.Balance.IsZero())

	_, err = orders.Get(ctx, "e2e-1")
	require.ErrorIs(t, err, order.ErrNotFound)

	out, err := svc.Reprint(ctx, sess.Result.Documents[1].ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Result.Printouts[1].Content, out)
}

type plainRenderer struct{}

func (plainRenderer) Render(t *ledger.ClosedTicket) ([]byte, error) {
	return []byte(t.TicketID + " " + t.Total.StringFixed(2)), nil
}
