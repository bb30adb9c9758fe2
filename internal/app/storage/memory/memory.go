// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bloxify/blxbank/internal/app/domain/bank"
	"github.com/bloxify/blxbank/internal/app/domain/locker"
	"github.com/bloxify/blxbank/internal/app/storage"
)

// Store is the in-memory store.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]bank.BankAccount
	locks        map[string]map[uint64]locker.Lock
	transactions map[string][]bank.Transaction
	state        bank.State
}

var _ storage.BankStore = (*Store)(nil)
var _ storage.LockStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]bank.BankAccount),
		locks:        make(map[string]map[uint64]locker.Lock),
		transactions: make(map[string][]bank.Transaction),
	}
}

// BankStore implementation ----------------------------------------------------

func (s *Store) CreateBankAccount(_ context.Context, acct bank.BankAccount) (bank.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.Key == "" {
		return bank.BankAccount{}, fmt.Errorf("account key required")
	}
	if _, exists := s.accounts[acct.Key]; exists {
		return bank.BankAccount{}, fmt.Errorf("account %s already exists", acct.Key)
	}

	s.accounts[acct.Key] = acct
	return acct, nil
}

func (s *Store) UpdateBankAccount(_ context.Context, acct bank.BankAccount) (bank.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.Key]; !ok {
		return bank.BankAccount{}, fmt.Errorf("account %s: %w", acct.Key, storage.ErrNotFound)
	}
	s.accounts[acct.Key] = acct
	return acct, nil
}

func (s *Store) UpdateBankAccounts(_ context.Context, accts ...bank.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range accts {
		if _, ok := s.accounts[acct.Key]; !ok {
			return fmt.Errorf("account %s: %w", acct.Key, storage.ErrNotFound)
		}
	}
	for _, acct := range accts {
		s.accounts[acct.Key] = acct
	}
	return nil
}

func (s *Store) GetBankAccount(_ context.Context, key string) (bank.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[key]
	if !ok {
		return bank.BankAccount{}, fmt.Errorf("account %s: %w", key, storage.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) ListBankAccounts(_ context.Context) ([]bank.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]bank.BankAccount, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *Store) GetBankState(_ context.Context) (bank.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

func (s *Store) UpdateBankState(_ context.Context, st bank.State) (bank.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return st, nil
}

// LockStore implementation ----------------------------------------------------

func (s *Store) CreateLock(_ context.Context, lk locker.Lock) (locker.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lk.Recipient == "" || lk.Index == 0 {
		return locker.Lock{}, fmt.Errorf("lock requires a recipient and a 1-based index")
	}
	byIndex, ok := s.locks[lk.Recipient]
	if !ok {
		byIndex = make(map[uint64]locker.Lock)
		s.locks[lk.Recipient] = byIndex
	}
	if _, exists := byIndex[lk.Index]; exists {
		return locker.Lock{}, fmt.Errorf("lock %s/%d already exists", lk.Recipient, lk.Index)
	}

	byIndex[lk.Index] = lk
	return lk, nil
}

func (s *Store) UpdateLock(_ context.Context, lk locker.Lock) (locker.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locks[lk.Recipient][lk.Index]; !ok {
		return locker.Lock{}, fmt.Errorf("lock %s/%d: %w", lk.Recipient, lk.Index, storage.ErrNotFound)
	}
	s.locks[lk.Recipient][lk.Index] = lk
	return lk, nil
}

func (s *Store) GetLock(_ context.Context, recipient string, index uint64) (locker.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lk, ok := s.locks[recipient][index]
	if !ok {
		return locker.Lock{}, fmt.Errorf("lock %s/%d: %w", recipient, index, storage.ErrNotFound)
	}
	return lk, nil
}

func (s *Store) ListLocks(_ context.Context, recipient string) ([]locker.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byIndex := s.locks[recipient]
	result := make([]locker.Lock, 0, len(byIndex))
	for _, lk := range byIndex {
		result = append(result, lk)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result, nil
}

// TransactionStore implementation ---------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, tx bank.Transaction) (bank.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.transactions[tx.AccountKey] = append(s.transactions[tx.AccountKey], tx)
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, accountKey string, limit int) ([]bank.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.transactions[accountKey]
	result := make([]bank.Transaction, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, history[i])
	}
	return result, nil
}
