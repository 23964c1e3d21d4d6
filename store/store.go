// Package store persists the state of hold invoices keyed by payment hash.
//
// Every backend offers the same write modes: Create only succeeds for a new
// payment hash and Replace only succeeds for an existing one. Replace takes
// the generation the caller read, so a write that raced another writer is
// refused instead of silently overwriting it.
package store

import (
	"context"

	"github.com/elementsproject/holdinvoice/holdstate"
	"github.com/pkg/errors"
)

const DefaultNamespace = "holdinvoice"

var (
	ErrAlreadyExists      = errors.New("state already exists")
	ErrDoesNotExist       = errors.New("state does not exist")
	ErrAmbiguous          = errors.New("more than one state entry")
	ErrGenerationMismatch = errors.New("state was modified concurrently")
)

// Entry is the persisted state of a single hold invoice.
type Entry struct {
	PaymentHash string          `json:"payment_hash"`
	State       holdstate.State `json:"state"`
	Generation  uint64          `json:"generation"`
}

// Store is implemented by every state backend.
type Store interface {
	Create(ctx context.Context, paymentHash string, state holdstate.State) error
	Replace(ctx context.Context, paymentHash string, state holdstate.State, generation uint64) error
	Get(ctx context.Context, paymentHash string) (*Entry, error)
	List(ctx context.Context) ([]*Entry, error)
}
