package customer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a directory entry with a stored, prepaid balance.
type Customer struct {
	ID      string
	Name    string
	Balance decimal.Decimal
}

// Directory provides lookup and balance updates for customers.
type Directory interface {
	Get(ctx context.Context, id string) (*Customer, error)
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
}
