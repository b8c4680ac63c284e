package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-settle/internal/domain/order"
)

// Kind is the commit sequence an intent runs.
type Kind string

const (
	KindFull     Kind = "full"
	KindPartial  Kind = "partial"
	KindRecharge Kind = "recharge"
)

// IntentStatus tracks whether every step of an intent has been applied.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentCommitted IntentStatus = "committed"
)

// Intent is written before any side effect of a commit. Balance mutation,
// ledger records and order updates are all derived from it, and every step
// is recorded as it completes, so an interrupted commit can be found and
// finished instead of being left half applied.
type Intent struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind"`
	Status       IntentStatus `json:"status"`
	Order        order.Order  `json:"order"`
	CustomerID   string       `json:"customer_id,omitempty"`
	CustomerName string       `json:"customer_name,omitempty"`
	// PriorPaid is the sum of partial payments recorded before this one.
	PriorPaid  decimal.Decimal `json:"prior_paid"`
	Allocation Allocation      `json:"allocation"`

	// Document numbers are drawn before the intent is stored.
	ReceiptID string `json:"receipt_id,omitempty"`
	TicketID  string `json:"ticket_id,omitempty"`

	// BalanceBefore is the customer balance observed right before the
	// balance step, used to tell whether that step already landed when a
	// resume finds BalanceApplied unset.
	BalanceBefore  decimal.NullDecimal `json:"balance_before"`
	BalanceApplied bool                `json:"balance_applied"`
	LedgerApplied  bool                `json:"ledger_applied"`
	OrderApplied   bool                `json:"order_applied"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// balanceDelta is the signed change the intent applies to the customer
// balance: a debit for balance payments, a credit for recharges.
func (in *Intent) balanceDelta() decimal.Decimal {
	switch in.Kind {
	case KindRecharge:
		return in.Allocation.Received
	default:
		return in.Allocation.BalanceUsed.Neg()
	}
}

// IntentStore persists intents.
type IntentStore interface {
	Create(ctx context.Context, in *Intent) error
	Update(ctx context.Context, in *Intent) error
	Get(ctx context.Context, id string) (*Intent, error)
	// ListPending returns intents that have not reached IntentCommitted,
	// oldest first.
	ListPending(ctx context.Context) ([]Intent, error)
}
