// Package settlement closes open bills against cash, card and stored
// customer balance, allocating document numbers and appending the resulting
// documents to the ledger.
package settlement

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/oolio-settle/internal/domain/customer"
	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/sequence"
)

const (
	// DefaultChangeHold is how long a committed cash settlement with change
	// stays on screen before the order is finalized.
	DefaultChangeHold = 4 * time.Second
	// DefaultSessionTTL bounds how long a partial settlement may wait for
	// confirmation.
	DefaultSessionTTL = 15 * time.Minute
)

// Renderer produces the printable artifact of a closed document. Rendering
// must be a pure function of the record.
type Renderer interface {
	Render(t *ledger.ClosedTicket) ([]byte, error)
}

// ChangeDisplay presents the change due to the operator.
type ChangeDisplay interface {
	ShowChange(ctx context.Context, orderID string, change decimal.Decimal)
}

// Printout is a rendered document.
type Printout struct {
	DocumentID string
	TicketID   string
	Content    []byte
}

// Result describes a committed settlement.
type Result struct {
	SessionID  string
	IntentID   string
	Kind       Kind
	Allocation Allocation
	Documents  []ledger.ClosedTicket
	Printouts  []Printout
	// OrderCleared is false for partial settlements, which leave the order open.
	OrderCleared bool
	// Warnings lists failures that happened after the commit, such as a
	// document that could not be rendered. They do not undo the settlement.
	Warnings []string
}

// Dependencies are the collaborators of the Service.
type Dependencies struct {
	Orders    order.Aggregator
	Customers customer.Directory
	Sequences *sequence.Generator
	Ledger    ledger.Store
	Intents   IntentStore
	Renderer  Renderer
}

// Options tune the Service. Zero values select defaults.
type Options struct {
	ChangeHold     time.Duration
	SessionTTL     time.Duration
	Display        ChangeDisplay
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Now            func() time.Time
	// Wait blocks for the change hold. It is deliberately not tied to a
	// context: the hold cannot be cancelled once entered.
	Wait func(time.Duration)
}

// Service runs settlements through allocation, confirmation and commit.
type Service struct {
	orders    order.Aggregator
	customers customer.Directory
	sequences *sequence.Generator
	ledger    ledger.Store
	intents   IntentStore
	renderer  Renderer

	changeHold time.Duration
	sessionTTL time.Duration
	display    ChangeDisplay
	now        func() time.Time
	wait       func(time.Duration)
	sessions   *sessions
	locks      *orderLocks

	tracer  trace.Tracer
	metrics metrics
}

type metrics struct {
	documents metric.Int64Counter
	rejected  metric.Int64Counter
	amount    metric.Float64Histogram
}

// NewService creates a Service.
func NewService(deps Dependencies, opts Options) (*Service, error) {
	if opts.ChangeHold == 0 {
		opts.ChangeHold = DefaultChangeHold
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Display == nil {
		opts.Display = logDisplay{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Wait == nil {
		opts.Wait = time.Sleep
	}

	meter := opts.MeterProvider.Meter("settlement")
	var (
		m   metrics
		err error
	)
	if m.documents, err = meter.Int64Counter("settlement.documents",
		metric.WithDescription("Closed documents appended to the ledger"),
	); err != nil {
		return nil, errors.Wrap(err, "documents counter")
	}
	if m.rejected, err = meter.Int64Counter("settlement.validation_failures",
		metric.WithDescription("Settlements rejected by validation"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	if m.amount, err = meter.Float64Histogram("settlement.amount",
		metric.WithDescription("Amount settled per document"),
	); err != nil {
		return nil, errors.Wrap(err, "amount histogram")
	}

	return &Service{
		orders:     deps.Orders,
		customers:  deps.Customers,
		sequences:  deps.Sequences,
		ledger:     deps.Ledger,
		intents:    deps.Intents,
		renderer:   deps.Renderer,
		changeHold: opts.ChangeHold,
		sessionTTL: opts.SessionTTL,
		display:    opts.Display,
		now:        opts.Now,
		wait:       opts.Wait,
		sessions:   newSessions(),
		locks:      newOrderLocks(),
		tracer:     opts.TracerProvider.Tracer("settlement"),
		metrics:    m,
	}, nil
}

// Submit allocates a settlement for the order. A full settlement is
// committed right away and the returned session is Committed. A partial
// settlement is parked in PartialConfirming until Confirm or Cancel.
// Validation failures return before any side effect.
func (s *Service) Submit(ctx context.Context, req Request) (_ *Session, rerr error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Submit",
		trace.WithAttributes(attribute.String("order.id", req.OrderID)),
	)
	defer func() { endSpan(span, rerr) }()

	now := s.now()
	s.sessions.expire(now.Add(-s.sessionTTL))

	unlock := s.locks.lock(req.OrderID)
	defer unlock()

	sess := &Session{
		ID:        uuid.NewString(),
		State:     StateIdle,
		Request:   req,
		CreatedAt: now,
	}
	if err := sess.fire(EventSubmit); err != nil {
		return nil, err
	}

	pending, err := s.allocate(ctx, req)
	if err != nil {
		_ = sess.fire(EventReject)
		if IsValidation(err) {
			s.metrics.rejected.Add(ctx, 1)
			zctx.From(ctx).Info("Settlement rejected",
				zap.String("order_id", req.OrderID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	sess.Pending = *pending

	if pending.Allocation.Partial {
		if err := sess.fire(EventPartial); err != nil {
			return nil, err
		}
		s.sessions.put(sess)
		return sess, nil
	}

	if err := sess.fire(EventFull); err != nil {
		return nil, err
	}
	if _, err := s.commit(ctx, sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// Confirm commits a partial settlement waiting for confirmation.
func (s *Service) Confirm(ctx context.Context, sessionID string) (_ *Session, rerr error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Confirm",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer func() { endSpan(span, rerr) }()

	sess, ok := s.sessions.take(sessionID, s.cutoff())
	if !ok {
		return nil, ErrSessionNotFound
	}

	unlock := s.locks.lock(sess.Pending.Order.ID)
	defer unlock()

	if err := s.recheck(ctx, &sess.Pending); err != nil {
		_ = sess.fire(EventDecline)
		return sess, err
	}
	if err := sess.fire(EventConfirm); err != nil {
		return nil, err
	}
	if _, err := s.commit(ctx, sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// Cancel declines a partial settlement. Nothing was applied, so nothing is
// undone.
func (s *Service) Cancel(sessionID string) (*Session, error) {
	sess, ok := s.sessions.take(sessionID, s.cutoff())
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := sess.fire(EventDecline); err != nil {
		return nil, err
	}
	return sess, nil
}

// Session returns a snapshot of a session waiting for confirmation.
func (s *Service) Session(sessionID string) (*Session, error) {
	sess, ok := s.sessions.get(sessionID, s.cutoff())
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Resume finishes an interrupted commit from its intent.
func (s *Service) Resume(ctx context.Context, intentID string) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Resume",
		trace.WithAttributes(attribute.String("intent.id", intentID)),
	)
	defer func() { endSpan(span, rerr) }()

	in, err := s.intents.Get(ctx, intentID)
	if err != nil {
		return nil, errors.Wrap(err, "get intent")
	}
	if in.Status == IntentCommitted {
		return nil, ErrIntentCommitted
	}

	unlock := s.locks.lock(in.Order.ID)
	defer unlock()
	return s.apply(ctx, in, false)
}

// cutoff is the creation time before which sessions have expired.
func (s *Service) cutoff() time.Time {
	return s.now().Add(-s.sessionTTL)
}

// recheck verifies that the order is still open and its pending amount is
// the one p was allocated against.
func (s *Service) recheck(ctx context.Context, p *Pending) error {
	o, err := s.orders.Get(ctx, p.Order.ID)
	if errors.Is(err, order.ErrNotFound) {
		return errors.Wrapf(ErrPendingChanged, "order %s is no longer open", p.Order.ID)
	}
	if err != nil {
		return errors.Wrap(err, "get order")
	}
	payments, err := s.orders.PartialPayments(ctx, p.Order.ID)
	if err != nil {
		return errors.Wrap(err, "get partial payments")
	}
	if pending := order.Pending(o, payments); !pending.Equal(p.Allocation.Due) {
		return errors.Wrapf(ErrPendingChanged, "pending is %s, settlement was computed for %s",
			pending.StringFixed(2), p.Allocation.Due.StringFixed(2))
	}
	return nil
}

// ResumePending resumes every intent left pending, oldest first, and
// returns how many were completed.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.intents.ListPending(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list pending intents")
	}
	lg := zctx.From(ctx)
	done := 0
	for i := range pending {
		in := &pending[i]
		if _, err := s.apply(ctx, in, false); err != nil {
			lg.Warn("Pending settlement could not be resumed",
				zap.String("intent_id", in.ID),
				zap.Error(err),
			)
			continue
		}
		done++
	}
	return done, nil
}

// Reprint renders a document from its ledger record.
func (s *Service) Reprint(ctx context.Context, documentID string) ([]byte, error) {
	t, err := s.ledger.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out, err := s.renderer.Render(t)
	if err != nil {
		return nil, errors.Wrapf(err, "render %s", t.TicketID)
	}
	return out, nil
}

// OrderStatus is the settlement view of an open order.
type OrderStatus struct {
	Order    *order.Order
	Payments []order.PartialPayment
	Paid     decimal.Decimal
	Pending  decimal.Decimal
}

// Status returns the order with its partial payments and pending amount.
func (s *Service) Status(ctx context.Context, orderID string) (*OrderStatus, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payments, err := s.orders.PartialPayments(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get partial payments")
	}
	return &OrderStatus{
		Order:    o,
		Payments: payments,
		Paid:     order.Paid(payments),
		Pending:  order.Pending(o, payments),
	}, nil
}

func (s *Service) allocate(ctx context.Context, req Request) (*Pending, error) {
	o, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	payments, err := s.orders.PartialPayments(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get partial payments")
	}
	prior := order.Paid(payments)

	var c *customer.Customer
	if o.CustomerID != "" {
		if c, err = s.customers.Get(ctx, o.CustomerID); err != nil {
			return nil, errors.Wrap(err, "get customer")
		}
	}
	if o.Kind == order.KindRecharge {
		if c == nil {
			return nil, ErrCustomerRequired
		}
		if req.UseBalance {
			return nil, ErrBalanceOnRecharge
		}
	}
	if req.UseBalance && c == nil {
		return nil, ErrCustomerRequired
	}

	balance := decimal.Zero
	if c != nil {
		balance = c.Balance
	}
	a, err := Allocate(Input{
		Pending:         o.Total.Sub(prior),
		UseBalance:      req.UseBalance,
		CustomerBalance: balance,
		Instrument:      req.Instrument,
		Tendered:        req.Tendered,
		Standalone:      o.Standalone(),
		AllowPartial:    req.AllowPartial,
	})
	if err != nil {
		return nil, err
	}
	if err := a.Check(balance); err != nil {
		return nil, errors.Wrap(err, "check allocation")
	}

	return &Pending{
		Order:      *o,
		Customer:   c,
		PriorPaid:  prior,
		Allocation: a,
	}, nil
}

// commit draws document numbers, records the intent and applies it. Number
// allocation comes first: if the counter store is unavailable the commit is
// aborted before anything else is touched. Numbers drawn for an aborted
// commit are not returned to the counter.
func (s *Service) commit(ctx context.Context, sess *Session) (*Result, error) {
	p := sess.Pending
	kind := KindFull
	switch {
	case p.Allocation.Partial:
		kind = KindPartial
	case p.Order.Kind == order.KindRecharge:
		kind = KindRecharge
	}

	now := s.now()
	in := &Intent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Status:     IntentPending,
		Order:      p.Order,
		PriorPaid:  p.PriorPaid,
		Allocation: p.Allocation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if p.Customer != nil {
		in.CustomerID = p.Customer.ID
		in.CustomerName = p.Customer.Name
	}

	for _, ns := range []sequence.Namespace{sequence.Receipt, sequence.Ticket} {
		if !in.needsNumber(ns) {
			continue
		}
		id, err := s.sequences.NextID(ctx, ns)
		if err != nil {
			return nil, &CommitError{Step: StepAllocateIDs, Err: err}
		}
		if ns == sequence.Receipt {
			in.ReceiptID = id
		} else {
			in.TicketID = id
		}
	}

	if err := s.intents.Create(ctx, in); err != nil {
		return nil, &CommitError{Step: StepRecordIntent, Err: err}
	}

	res, err := s.apply(ctx, in, true)
	if err != nil {
		return nil, err
	}
	res.SessionID = sess.ID
	sess.Result = res
	if err := sess.fire(EventCommitted); err != nil {
		return nil, err
	}
	return res, nil
}

// apply runs the steps of in that have not completed yet: balance, ledger,
// order. hold enables the change display pause, which is skipped when
// resuming.
func (s *Service) apply(ctx context.Context, in *Intent, hold bool) (*Result, error) {
	lg := zctx.From(ctx).With(
		zap.String("intent_id", in.ID),
		zap.String("order_id", in.Order.ID),
	)

	if err := s.applyBalance(ctx, in); err != nil {
		return nil, &CommitError{IntentID: in.ID, Step: StepBalance, Err: err}
	}

	docs := in.documents()
	if !in.LedgerApplied {
		for i := range docs {
			if err := s.ledger.Append(ctx, &docs[i]); err != nil && !errors.Is(err, ledger.ErrDuplicate) {
				return nil, &CommitError{IntentID: in.ID, Step: StepLedger, Err: err}
			}
		}
		in.LedgerApplied = true
		if err := s.save(ctx, in); err != nil {
			return nil, &CommitError{IntentID: in.ID, Step: StepLedger, Err: err}
		}
	}

	if !in.OrderApplied {
		if err := s.applyOrder(ctx, in, hold); err != nil {
			return nil, &CommitError{IntentID: in.ID, Step: StepOrder, Err: err}
		}
		in.OrderApplied = true
		if err := s.save(ctx, in); err != nil {
			return nil, &CommitError{IntentID: in.ID, Step: StepOrder, Err: err}
		}
	}

	in.Status = IntentCommitted
	if err := s.save(ctx, in); err != nil {
		return nil, &CommitError{IntentID: in.ID, Step: StepCompleteIntent, Err: err}
	}

	res := &Result{
		IntentID:     in.ID,
		Kind:         in.Kind,
		Allocation:   in.Allocation,
		Documents:    docs,
		OrderCleared: in.Kind != KindPartial,
	}
	for i := range docs {
		d := &docs[i]
		attrs := metric.WithAttributes(attribute.String("document_type", string(d.DocumentType)))
		s.metrics.documents.Add(ctx, 1, attrs)
		s.metrics.amount.Record(ctx, d.Total.InexactFloat64(), attrs)

		out, err := s.renderer.Render(d)
		if err != nil {
			lg.Warn("Document rendering failed", zap.String("ticket_id", d.TicketID), zap.Error(err))
			res.Warnings = append(res.Warnings, "render "+d.TicketID+": "+err.Error())
			continue
		}
		res.Printouts = append(res.Printouts, Printout{DocumentID: d.ID, TicketID: d.TicketID, Content: out})
	}

	lg.Info("Settlement committed",
		zap.String("kind", string(in.Kind)),
		zap.String("due", in.Allocation.Due.StringFixed(2)),
		zap.String("balance_used", in.Allocation.BalanceUsed.StringFixed(2)),
		zap.String("received", in.Allocation.Received.StringFixed(2)),
		zap.Int("documents", len(docs)),
	)
	return res, nil
}

// applyBalance debits the balance used, or credits a recharge. The balance
// seen before the write is stored on the intent first, so a resume can tell
// whether the write already landed.
func (s *Service) applyBalance(ctx context.Context, in *Intent) error {
	delta := in.balanceDelta()
	if in.BalanceApplied || delta.IsZero() || in.CustomerID == "" {
		return nil
	}

	c, err := s.customers.Get(ctx, in.CustomerID)
	if err != nil {
		return errors.Wrap(err, "get customer")
	}
	if in.BalanceBefore.Valid && !c.Balance.Equal(in.BalanceBefore.Decimal) &&
		c.Balance.Equal(in.BalanceBefore.Decimal.Add(delta)) {
		in.BalanceApplied = true
		return s.save(ctx, in)
	}

	next := c.Balance.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}
	in.BalanceBefore = decimal.NewNullDecimal(c.Balance)
	if err := s.save(ctx, in); err != nil {
		return err
	}
	if err := s.customers.SetBalance(ctx, in.CustomerID, next); err != nil {
		return errors.Wrap(err, "set balance")
	}
	in.BalanceApplied = true
	return s.save(ctx, in)
}

func (s *Service) applyOrder(ctx context.Context, in *Intent, hold bool) error {
	if in.Kind == KindPartial {
		if err := s.orders.RecordPartialPayment(ctx, in.Order.ID, in.partialPayment()); err != nil {
			return errors.Wrap(err, "record partial payment")
		}
		return nil
	}

	if change := in.Allocation.Change; hold && change.IsPositive() {
		s.display.ShowChange(ctx, in.Order.ID, change)
		s.wait(s.changeHold)
	}
	if err := s.orders.Clear(ctx, in.Order.ID); err != nil && !errors.Is(err, order.ErrNotFound) {
		return errors.Wrap(err, "clear order")
	}
	return nil
}

func (s *Service) save(ctx context.Context, in *Intent) error {
	in.UpdatedAt = s.now()
	if err := s.intents.Update(ctx, in); err != nil {
		return errors.Wrap(err, "update intent")
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type logDisplay struct{}

func (logDisplay) ShowChange(ctx context.Context, orderID string, change decimal.Decimal) {
	zctx.From(ctx).Info("Change due",
		zap.String("order_id", orderID),
		zap.String("change", change.StringFixed(2)),
	)
}
