// Package custody is the boundary to the external asset. The ledger never
// holds the asset directly; adapters move it into and out of the shared pool
// on the ledger's behalf.
package custody

import (
	"context"
	"errors"
)

// Adapter moves the external asset between account holders and the pool.
// Calls are synchronous: they return only once the movement has definitively
// succeeded or failed. Implementations must not call back into the ledger.
type Adapter interface {
	// Pull moves amount from the holder's external balance into the pool.
	Pull(ctx context.Context, from string, amount uint64) error
	// Push moves amount from the pool back to the holder.
	Push(ctx context.Context, to string, amount uint64) error
	// Balance reports the total currently custodied for the ledger.
	Balance(ctx context.Context) (uint64, error)
}

var (
	// ErrInsufficientFunds is returned when the holder's external balance
	// cannot cover a pull, or the pool cannot cover a push.
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	// ErrInsufficientAllowance is returned when the holder has not approved
	// the pull amount.
	ErrInsufficientAllowance = errors.New("custody: insufficient allowance")
)
