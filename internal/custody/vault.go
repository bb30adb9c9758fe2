package custody

import (
	"context"
	"sync"
)

// Vault is an in-memory external asset used for tests and local development.
// It models token balances and per-holder allowances granted to the bank, so
// a pull fails the same way an on-chain transferFrom would.
type Vault struct {
	mu         sync.Mutex
	balances   map[string]uint64
	allowances map[string]uint64
	pool       uint64
}

var _ Adapter = (*Vault)(nil)

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		balances:   make(map[string]uint64),
		allowances: make(map[string]uint64),
	}
}

// Mint credits a holder's external balance.
func (v *Vault) Mint(holder string, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[holder] += amount
}

// Approve grants the bank permission to pull up to amount from the holder.
func (v *Vault) Approve(holder string, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowances[holder] = amount
}

// BalanceOf reports a holder's external balance.
func (v *Vault) BalanceOf(holder string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[holder]
}

func (v *Vault) Pull(_ context.Context, from string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.allowances[from] < amount {
		return ErrInsufficientAllowance
	}
	if v.balances[from] < amount {
		return ErrInsufficientFunds
	}

	v.allowances[from] -= amount
	v.balances[from] -= amount
	v.pool += amount
	return nil
}

func (v *Vault) Push(_ context.Context, to string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pool < amount {
		return ErrInsufficientFunds
	}

	v.pool -= amount
	v.balances[to] += amount
	return nil
}

func (v *Vault) Balance(_ context.Context) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pool, nil
}
