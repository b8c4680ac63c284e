package settlement

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for malformed settlement requests.
var (
	ErrNegativeTender     = errors.New("tendered amount must not be negative")
	ErrSubCentTender      = errors.New("tendered amount must not have more than two decimal places")
	ErrInstrumentRequired = errors.New("cash or card is required for the remaining amount")
	ErrZeroPartial        = errors.New("partial settlement requires a positive amount")
	ErrBalanceOnPartial   = errors.New("customer balance can only be applied when the bill is settled in full")
	ErrBalanceOnRecharge  = errors.New("a balance recharge cannot be paid with balance")
	ErrCustomerRequired   = errors.New("customer required")
)

// Commit and lifecycle errors.
var (
	// ErrInsufficientBalance is returned when the customer's balance dropped
	// below the allocated amount between allocation and debit.
	ErrInsufficientBalance = errors.New("customer balance is lower than the allocated amount")
	ErrSessionNotFound     = errors.New("settlement session not found")
	// ErrPendingChanged is returned when a partial settlement is confirmed
	// after the order's pending amount moved since it was allocated.
	ErrPendingChanged      = errors.New("pending amount changed since the settlement was computed")
	ErrIntentNotFound      = errors.New("settlement intent not found")
	ErrIntentCommitted     = errors.New("settlement intent already committed")
)

// OverchargeError is returned when a card charge exceeds the remaining due.
// Card payments never produce change.
type OverchargeError struct {
	Tendered decimal.Decimal
	Due      decimal.Decimal
}

func (e *OverchargeError) Error() string {
	return fmt.Sprintf("card amount %s exceeds amount due %s", e.Tendered.StringFixed(2), e.Due.StringFixed(2))
}

// IncompleteStandalonePaymentError is returned when a take-away ticket or a
// balance recharge is not paid in full.
type IncompleteStandalonePaymentError struct {
	Tendered decimal.Decimal
	Due      decimal.Decimal
}

func (e *IncompleteStandalonePaymentError) Error() string {
	return fmt.Sprintf("standalone ticket must be paid in full: tendered %s of %s",
		e.Tendered.StringFixed(2), e.Due.StringFixed(2))
}

// InsufficientPaymentError is returned when the tendered amount does not
// cover the remaining due and partial settlement is not enabled.
type InsufficientPaymentError struct {
	Tendered decimal.Decimal
	Due      decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("tendered amount %s is less than amount due %s",
		e.Tendered.StringFixed(2), e.Due.StringFixed(2))
}

// IsValidation reports whether err is a validation failure raised before any
// side effect. Such failures are recovered by re-entering amounts.
func IsValidation(err error) bool {
	var (
		overcharge *OverchargeError
		standalone *IncompleteStandalonePaymentError
		short      *InsufficientPaymentError
	)
	switch {
	case errors.As(err, &overcharge), errors.As(err, &standalone), errors.As(err, &short):
		return true
	case errors.Is(err, ErrNegativeTender),
		errors.Is(err, ErrSubCentTender),
		errors.Is(err, ErrInstrumentRequired),
		errors.Is(err, ErrZeroPartial),
		errors.Is(err, ErrBalanceOnPartial),
		errors.Is(err, ErrBalanceOnRecharge),
		errors.Is(err, ErrCustomerRequired):
		return true
	default:
		return false
	}
}

// Step names a stage of the commit sequence.
type Step string

const (
	StepAllocateIDs    Step = "allocate_ids"
	StepRecordIntent   Step = "record_intent"
	StepBalance        Step = "balance"
	StepLedger         Step = "ledger"
	StepOrder          Step = "order"
	StepCompleteIntent Step = "complete_intent"
)

// CommitError reports the commit step that failed. Steps before Step have
// been applied and are not rolled back; the commit can be finished with
// Service.Resume using IntentID. IntentID is empty when the failure happened
// before the intent was recorded, in which case nothing was applied.
type CommitError struct {
	IntentID string
	Step     Step
	Err      error
}

func (e *CommitError) Error() string {
	if e.IntentID == "" {
		return fmt.Sprintf("settlement aborted at %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("settlement %s interrupted at %s: %v", e.IntentID, e.Step, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
