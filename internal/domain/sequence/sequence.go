// Package sequence issues monotonically increasing document numbers from a
// durable counter, one independent counter per namespace.
package sequence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Namespace identifies an independent counter.
type Namespace string

const (
	// Ticket numbers full-order documents.
	Ticket Namespace = "ticket"
	// Receipt numbers balance and partial-payment documents.
	Receipt Namespace = "receipt"
)

// ErrUnknownNamespace is returned for a namespace other than Ticket or Receipt.
var ErrUnknownNamespace = errors.New("unknown sequence namespace")

// Valid reports whether n is one of the known namespaces.
func (n Namespace) Valid() bool {
	return n == Ticket || n == Receipt
}

// Store persists the last issued value of each namespace.
//
// Increment must advance and persist the counter atomically and return the
// new value. A value, once returned, must never be returned again for the
// same namespace. A namespace that was never used starts at 0, so the first
// call returns 1.
type Store interface {
	Increment(ctx context.Context, ns Namespace) (int64, error)
}

// Generator hands out document numbers backed by a Store.
type Generator struct {
	store Store
}

// NewGenerator creates a Generator backed by the given Store.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// Next returns the next value for ns.
func (g *Generator) Next(ctx context.Context, ns Namespace) (int64, error) {
	if !ns.Valid() {
		return 0, errors.Wrapf(ErrUnknownNamespace, "%q", ns)
	}
	v, err := g.store.Increment(ctx, ns)
	if err != nil {
		return 0, errors.Wrapf(err, "increment %s counter", ns)
	}
	if v <= 0 {
		return 0, errors.Errorf("counter %s returned non-positive value %d", ns, v)
	}
	return v, nil
}

// NextID returns the next value for ns already rendered with Format.
func (g *Generator) NextID(ctx context.Context, ns Namespace) (string, error) {
	v, err := g.Next(ctx, ns)
	if err != nil {
		return "", err
	}
	return Format(v, ns), nil
}

// Format renders id as a document identifier: six zero-padded digits for
// tickets, the same prefixed with "R" for receipts.
func Format(id int64, ns Namespace) string {
	if ns == Receipt {
		return fmt.Sprintf("R%06d", id)
	}
	return fmt.Sprintf("%06d", id)
}
