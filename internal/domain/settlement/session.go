package settlement

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/customer"
	"github.com/xenking/oolio-settle/internal/domain/order"
)

// Request is a single "complete settlement" action of the operator.
type Request struct {
	OrderID      string
	UseBalance   bool
	Instrument   order.Instrument
	Tendered     decimal.Decimal
	AllowPartial bool
}

// Pending is the settlement computed for a session. A partial settlement is
// checked against the order again before it is committed.
type Pending struct {
	Order      order.Order
	Customer   *customer.Customer
	PriorPaid  decimal.Decimal
	Allocation Allocation
}

// Session tracks one settlement through its states.
type Session struct {
	ID        string
	State     State
	Request   Request
	Pending   Pending
	Result    *Result
	CreatedAt time.Time
}

func (s *Session) fire(ev Event) error {
	to, err := Transition(s.State, ev)
	if err != nil {
		return err
	}
	s.State = to
	return nil
}

// sessions keeps the sessions waiting for partial-payment confirmation.
type sessions struct {
	mu sync.Mutex
	m  map[string]*Session
}

func newSessions() *sessions {
	return &sessions{m: make(map[string]*Session)}
}

func (s *sessions) put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.ID] = sess
}

// get returns a copy of a live session. Sessions created before cutoff are
// dropped and reported as missing.
func (s *sessions) get(id string, cutoff time.Time) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(id, cutoff)
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// take removes and returns a live session, so a confirmation or
// cancellation is processed at most once.
func (s *sessions) take(id string, cutoff time.Time) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(id, cutoff)
	if ok {
		delete(s.m, id)
	}
	return sess, ok
}

func (s *sessions) live(id string, cutoff time.Time) (*Session, bool) {
	sess, ok := s.m[id]
	if !ok {
		return nil, false
	}
	if sess.CreatedAt.Before(cutoff) {
		delete(s.m, id)
		return nil, false
	}
	return sess, true
}

// expire drops sessions created before cutoff and returns how many were removed.
func (s *sessions) expire(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.m {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

// orderLocks serializes settlements of the same order.
type orderLocks struct {
	mu sync.Mutex
	m  map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{m: make(map[string]*orderLock)}
}

// lock blocks until the order is free and returns the unlock function.
func (l *orderLocks) lock(orderID string) func() {
	l.mu.Lock()
	ol, ok := l.m[orderID]
	if !ok {
		ol = &orderLock{}
		l.m[orderID] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()
	return func() {
		ol.mu.Unlock()
		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.m, orderID)
		}
		l.mu.Unlock()
	}
}
