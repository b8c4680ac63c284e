package settlement

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/order"
)

// Input holds everything the allocator needs. It carries no references to
// stores; Allocate is a pure function of its input.
type Input struct {
	// Pending is the order total minus partial payments already recorded.
	Pending         decimal.Decimal
	UseBalance      bool
	CustomerBalance decimal.Decimal
	// Instrument settles whatever the balance does not cover. It is ignored
	// when nothing remains due.
	Instrument order.Instrument
	// Tendered is the cash received or the amount to charge on the card.
	Tendered decimal.Decimal
	// Standalone orders (take-away, recharge) must be paid in full.
	Standalone bool
	// AllowPartial enables partial settlement of a table bill.
	AllowPartial bool
}

// Allocation is the split of a pending amount across the customer balance
// and one instrument. BalanceUsed + RemainingDue always equals Due.
type Allocation struct {
	Due          decimal.Decimal
	BalanceUsed  decimal.Decimal
	RemainingDue decimal.Decimal
	// Instrument is empty when RemainingDue is zero.
	Instrument order.Instrument
	Tendered   decimal.Decimal
	Change     decimal.Decimal

	// Partial is set when the tendered amount leaves the order open.
	Partial bool
	// Received is what the instrument actually settles: RemainingDue for a
	// full settlement, Tendered for a partial one.
	Received decimal.Decimal
	// NewPending is what stays open after a partial settlement.
	NewPending decimal.Decimal
}

// Allocate computes how a pending amount is settled.
//
// The balance is applied first, capped at the pending amount. Whatever
// remains must be covered by the instrument. Validation runs in a fixed
// order and the first failure wins: card overcharge, short payment of a
// standalone order, short payment without partial settlement enabled. A
// tendered amount equal to the remaining due is always a full settlement.
func Allocate(in Input) (Allocation, error) {
	if in.Tendered.IsNegative() {
		return Allocation{}, ErrNegativeTender
	}
	if !in.Tendered.Equal(in.Tendered.Round(2)) {
		return Allocation{}, ErrSubCentTender
	}

	balanceUsed := decimal.Zero
	if in.UseBalance && in.CustomerBalance.IsPositive() && in.Pending.IsPositive() {
		balanceUsed = decimal.Min(in.CustomerBalance, in.Pending)
	}
	remaining := in.Pending.Sub(balanceUsed)

	a := Allocation{
		Due:          in.Pending,
		BalanceUsed:  balanceUsed,
		RemainingDue: remaining,
		Tendered:     decimal.Zero,
		Change:       decimal.Zero,
		Received:     decimal.Zero,
		NewPending:   decimal.Zero,
	}

	switch {
	case remaining.IsZero():
		// Fully covered by balance, or nothing left to pay.
		return a, nil
	case remaining.IsNegative():
		// Refund: money goes back through the chosen instrument, cash by default.
		a.Instrument = in.Instrument
		if !a.Instrument.Valid() {
			a.Instrument = order.InstrumentCash
		}
		a.Received = remaining
		return a, nil
	}

	if !in.Instrument.Valid() {
		return Allocation{}, ErrInstrumentRequired
	}
	a.Instrument = in.Instrument
	a.Tendered = in.Tendered

	short := in.Tendered.LessThan(remaining)
	if err := validate(in, remaining, short); err != nil {
		return Allocation{}, err
	}

	if in.Instrument == order.InstrumentCash && in.Tendered.GreaterThan(remaining) {
		a.Change = in.Tendered.Sub(remaining)
	}

	if short {
		if !in.Tendered.IsPositive() {
			return Allocation{}, ErrZeroPartial
		}
		if balanceUsed.IsPositive() {
			return Allocation{}, ErrBalanceOnPartial
		}
		a.Partial = true
		a.Received = in.Tendered
		a.NewPending = remaining.Sub(in.Tendered)
		return a, nil
	}

	a.Received = remaining
	return a, nil
}

func validate(in Input, remaining decimal.Decimal, short bool) error {
	if in.Instrument == order.InstrumentCard && in.Tendered.GreaterThan(remaining) {
		return &OverchargeError{Tendered: in.Tendered, Due: remaining}
	}
	if in.Standalone && short {
		return &IncompleteStandalonePaymentError{Tendered: in.Tendered, Due: remaining}
	}
	if short && !in.AllowPartial {
		return &InsufficientPaymentError{Tendered: in.Tendered, Due: remaining}
	}
	return nil
}

// Check verifies the allocation invariants against the balance available
// at allocation time.
func (a Allocation) Check(customerBalance decimal.Decimal) error {
	if !a.BalanceUsed.Add(a.RemainingDue).Equal(a.Due) {
		return errors.Errorf("allocation does not add up: %s + %s != %s", a.BalanceUsed, a.RemainingDue, a.Due)
	}
	if a.BalanceUsed.GreaterThan(customerBalance) {
		return errors.Errorf("balance used %s exceeds balance %s", a.BalanceUsed, customerBalance)
	}
	return nil
}
