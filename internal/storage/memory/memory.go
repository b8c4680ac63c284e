// Package memory implements the settlement collaborators in process memory.
// It backs the service when no database is configured and is used by tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/customer"
	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/sequence"
	"github.com/xenking/oolio-settle/internal/domain/settlement"
)

var (
	_ sequence.Store         = (*Counters)(nil)
	_ ledger.Store           = (*Ledger)(nil)
	_ order.Aggregator       = (*Orders)(nil)
	_ customer.Directory     = (*Customers)(nil)
	_ settlement.IntentStore = (*Intents)(nil)
)

// Counters implements sequence.Store.
type Counters struct {
	mu   sync.Mutex
	last map[sequence.Namespace]int64
}

// NewCounters creates empty counters.
func NewCounters() *Counters {
	return &Counters{last: make(map[sequence.Namespace]int64)}
}

// Increment implements sequence.Store.
func (c *Counters) Increment(_ context.Context, ns sequence.Namespace) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[ns]++
	return c.last[ns], nil
}

// Ledger implements ledger.Store. Records are kept in insertion order.
type Ledger struct {
	mu      sync.RWMutex
	records []ledger.ClosedTicket
	byID    map[string]int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{byID: make(map[string]int)}
}

// Append implements ledger.Store.
func (l *Ledger) Append(_ context.Context, t *ledger.ClosedTicket) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[t.ID]; ok {
		return ledger.ErrDuplicate
	}
	l.byID[t.ID] = len(l.records)
	l.records = append(l.records, cloneTicket(t))
	return nil
}

// Get implements ledger.Store.
func (l *Ledger) Get(_ context.Context, id string) (*ledger.ClosedTicket, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	t := cloneTicket(&l.records[i])
	return &t, nil
}

// Search implements ledger.Store.
func (l *Ledger) Search(_ context.Context, query string) ([]ledger.ClosedTicket, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ledger.ClosedTicket, 0, len(l.records))
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Matches(query) {
			out = append(out, cloneTicket(&l.records[i]))
		}
	}
	return out, nil
}

// Clear implements ledger.Store.
func (l *Ledger) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.byID = make(map[string]int)
	return nil
}

func cloneTicket(t *ledger.ClosedTicket) ledger.ClosedTicket {
	c := *t
	c.Items = slices.Clone(t.Items)
	c.TaxBreakdown = slices.Clone(t.TaxBreakdown)
	return c
}

// Orders implements order.Aggregator.
type Orders struct {
	mu       sync.Mutex
	open     map[string]order.Order
	payments map[string][]order.PartialPayment
}

// NewOrders creates an empty order book.
func NewOrders() *Orders {
	return &Orders{
		open:     make(map[string]order.Order),
		payments: make(map[string][]order.PartialPayment),
	}
}

// Put opens or replaces an order.
func (o *Orders) Put(_ context.Context, ord *order.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := *ord
	c.Lines = slices.Clone(ord.Lines)
	o.open[ord.ID] = c
	return nil
}

// Get implements order.Aggregator.
func (o *Orders) Get(_ context.Context, id string) (*order.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ord, ok := o.open[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	ord.Lines = slices.Clone(ord.Lines)
	return &ord, nil
}

// PartialPayments implements order.Aggregator.
func (o *Orders) PartialPayments(_ context.Context, orderID string) ([]order.PartialPayment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.payments[orderID]), nil
}

// Clear implements order.Aggregator. Payments are kept for reference.
func (o *Orders) Clear(_ context.Context, orderID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.open[orderID]; !ok {
		return order.ErrNotFound
	}
	delete(o.open, orderID)
	return nil
}

// RecordPartialPayment implements order.Aggregator. A payment already
// recorded is accepted even after the order was cleared.
func (o *Orders) RecordPartialPayment(_ context.Context, orderID string, p order.PartialPayment) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.payments[orderID] {
		if existing.ID == p.ID {
			return nil
		}
	}
	if _, ok := o.open[orderID]; !ok {
		return order.ErrNotFound
	}
	o.payments[orderID] = append(o.payments[orderID], p)
	return nil
}

// Customers implements customer.Directory.
type Customers struct {
	mu sync.Mutex
	m  map[string]customer.Customer
}

// NewCustomers creates an empty directory.
func NewCustomers() *Customers {
	return &Customers{m: make(map[string]customer.Customer)}
}

// Put adds or replaces a customer.
func (c *Customers) Put(_ context.Context, cust *customer.Customer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cust.ID] = *cust
	return nil
}

// Get implements customer.Directory.
func (c *Customers) Get(_ context.Context, id string) (*customer.Customer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cust, ok := c.m[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &cust, nil
}

// SetBalance implements customer.Directory.
func (c *Customers) SetBalance(_ context.Context, id string, balance decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cust, ok := c.m[id]
	if !ok {
		return customer.ErrNotFound
	}
	cust.Balance = balance
	c.m[id] = cust
	return nil
}

// Intents implements settlement.IntentStore.
type Intents struct {
	mu    sync.Mutex
	order []string
	m     map[string]settlement.Intent
}

// NewIntents creates an empty intent store.
func NewIntents() *Intents {
	return &Intents{m: make(map[string]settlement.Intent)}
}

// Create implements settlement.IntentStore.
func (s *Intents) Create(_ context.Context, in *settlement.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, in.ID)
	s.m[in.ID] = *in
	return nil
}

// Update implements settlement.IntentStore.
func (s *Intents) Update(_ context.Context, in *settlement.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[in.ID]; !ok {
		return settlement.ErrIntentNotFound
	}
	s.m[in.ID] = *in
	return nil
}

// Get implements settlement.IntentStore.
func (s *Intents) Get(_ context.Context, id string) (*settlement.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.m[id]
	if !ok {
		return nil, settlement.ErrIntentNotFound
	}
	return &in, nil
}

// ListPending implements settlement.IntentStore.
func (s *Intents) ListPending(_ context.Context) ([]settlement.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []settlement.Intent
	for _, id := range s.order {
		if in := s.m[id]; in.Status == settlement.IntentPending {
			out = append(out, in)
		}
	}
	return out, nil
}
