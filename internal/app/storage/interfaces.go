// Package storage defines the persistence interfaces for the ledger.
package storage

import (
	"context"
	"errors"

	"github.com/bloxify/blxbank/internal/app/domain/bank"
	"github.com/bloxify/blxbank/internal/app/domain/locker"
)

// ErrNotFound is wrapped by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// BankStore persists account records and the global ledger state.
type BankStore interface {
	CreateBankAccount(ctx context.Context, acct bank.BankAccount) (bank.BankAccount, error)
	UpdateBankAccount(ctx context.Context, acct bank.BankAccount) (bank.BankAccount, error)
	// UpdateBankAccounts applies a multi-account mutation as one unit, so a
	// transfer or lock can never strand one side of the movement.
	UpdateBankAccounts(ctx context.Context, accts ...bank.BankAccount) error
	GetBankAccount(ctx context.Context, key string) (bank.BankAccount, error)
	ListBankAccounts(ctx context.Context) ([]bank.BankAccount, error)

	GetBankState(ctx context.Context) (bank.State, error)
	UpdateBankState(ctx context.Context, st bank.State) (bank.State, error)
}

// LockStore persists lock records, keyed by (recipient, index).
type LockStore interface {
	CreateLock(ctx context.Context, lk locker.Lock) (locker.Lock, error)
	UpdateLock(ctx context.Context, lk locker.Lock) (locker.Lock, error)
	GetLock(ctx context.Context, recipient string, index uint64) (locker.Lock, error)
	ListLocks(ctx context.Context, recipient string) ([]locker.Lock, error)
}

// TransactionStore persists the append-only ledger history.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx bank.Transaction) (bank.Transaction, error)
	ListTransactions(ctx context.Context, accountKey string, limit int) ([]bank.Transaction, error)
}
