// Package bank implements the custodial ledger: accounts, deposits,
// withdrawals, transfers, and the time-lock engine in locks.go. All mutating
// operations are serialized behind one mutex and validate before they touch
// state, so a failed call leaves the ledger exactly as it found it.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	model "github.com/bloxify/blxbank/internal/app/domain/bank"
	"github.com/bloxify/blxbank/internal/app/storage"
	"github.com/bloxify/blxbank/internal/custody"
	"github.com/bloxify/blxbank/internal/events"
	"github.com/bloxify/blxbank/internal/logging"
	"github.com/bloxify/blxbank/internal/metrics"
)

// Ledger failure modes. Callers distinguish them with errors.Is.
var (
	ErrBankPaused           = errors.New("bank is paused")
	ErrAccountAlreadyActive = errors.New("account already active")
	ErrAccountNotActive     = errors.New("account not active")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrZeroAmount           = errors.New("amount must be greater than zero")
	ErrEndTimeNotInFuture   = errors.New("end time must be in the future")
	ErrNoSuchLock           = errors.New("no such lock")
	ErrNotYetMatured        = errors.New("lock has not matured")
	ErrNothingToClaim       = errors.New("nothing to claim")
	ErrLockExhausted        = errors.New("lock fully claimed")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrCustodyTransfer      = errors.New("custody transfer failed")
	ErrAlreadyInitialized   = errors.New("ledger already initialized")
)

// Service owns the ledger state. Every public operation runs to completion
// under the service mutex; custody adapter calls happen with the mutex held,
// so nothing can interleave between a custody movement and its bookkeeping.
type Service struct {
	mu       sync.Mutex
	accounts storage.BankStore
	locks    storage.LockStore
	txs      storage.TransactionStore
	custody  custody.Adapter
	bus      *events.Bus
	log      *logging.Logger

	// now is swappable for deterministic time in tests.
	now func() time.Time
}

// NewService creates the ledger service over the given stores and adapter.
func NewService(accounts storage.BankStore, locks storage.LockStore, txs storage.TransactionStore, adapter custody.Adapter, bus *events.Bus) *Service {
	return &Service{
		accounts: accounts,
		locks:    locks,
		txs:      txs,
		custody:  adapter,
		bus:      bus,
		log:      logging.New("bank"),
		now:      time.Now,
	}
}

// Initialize sets the administrator. It may be called once; repeat calls fail
// so a redeployment cannot silently seize the gate.
func (s *Service) Initialize(ctx context.Context, administrator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.accounts.GetBankState(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if st.Administrator != "" {
		return ErrAlreadyInitialized
	}

	st.Administrator = administrator
	if _, err := s.accounts.UpdateBankState(ctx, st); err != nil {
		return err
	}

	s.log.WithField("administrator", administrator).Info("ledger initialized")
	return nil
}

// CreateAccount activates the account for key. Re-activating a previously
// deactivated key yields a fresh zeroed record; lock records created before
// deactivation keep resolving against the key independently.
func (s *Service) CreateAccount(ctx context.Context, key string) (err error) {
	defer func() { metrics.RecordOperation("create_account", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.accounts.GetBankState(ctx)
	if err != nil {
		return err
	}
	if st.Paused {
		return ErrBankPaused
	}

	existing, err := s.accounts.GetBankAccount(ctx, key)
	switch {
	case err == nil && existing.Active:
		return ErrAccountAlreadyActive
	case err == nil:
		fresh := model.BankAccount{Key: key, CreatedAt: s.now().Unix(), Active: true}
		if _, err = s.accounts.UpdateBankAccount(ctx, fresh); err != nil {
			return err
		}
	case errors.Is(err, storage.ErrNotFound):
		acct := model.BankAccount{Key: key, CreatedAt: s.now().Unix(), Active: true}
		if _, err = s.accounts.CreateBankAccount(ctx, acct); err != nil {
			return err
		}
	default:
		return err
	}

	st.ActiveAccounts++
	if _, err = s.accounts.UpdateBankState(ctx, st); err != nil {
		return err
	}
	metrics.SetActiveAccounts(st.ActiveAccounts)

	s.bus.Publish(events.Event{Type: events.AccountCreated, Account: key})
	s.log.WithField("account", key).Info("account created")
	return nil
}

// Deposit pulls amount from the holder's external balance into the pool and
// credits the account. The pull happens before any bookkeeping, so a rejected
// custody transfer leaves the ledger untouched.
func (s *Service) Deposit(ctx context.Context, key string, amount uint64) (err error) {
	defer func() { metrics.RecordOperation("deposit", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, acct, err := s.runningActive(ctx, key)
	if err != nil {
		return err
	}

	if err := s.custody.Pull(ctx, key, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrCustodyTransfer, err)
	}

	acct.Balance += amount
	acct.TransactionsCount++
	if _, err = s.accounts.UpdateBankAccount(ctx, acct); err != nil {
		return err
	}

	st.PooledBalance += amount
	if _, err = s.accounts.UpdateBankState(ctx, st); err != nil {
		return err
	}
	metrics.SetPooledBalance(st.PooledBalance)

	s.recordTransaction(ctx, model.Transaction{
		AccountKey:   key,
		Type:         model.TransactionDeposit,
		Amount:       amount,
		BalanceAfter: acct.Balance,
	})
	s.bus.Publish(events.Event{Type: events.Deposited, Account: key, Amount: amount})
	return nil
}

// Withdraw debits the account and pushes amount back to the holder. The
// debit is rolled back if the custody push fails.
func (s *Service) Withdraw(ctx context.Context, key string, amount uint64) (err error) {
	defer func() { metrics.RecordOperation("withdraw", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, acct, err := s.runningActive(ctx, key)
	if err != nil {
		return err
	}
	if acct.Balance < amount {
		return ErrInsufficientBalance
	}

	prevAcct, prevState := acct, st

	acct.Balance -= amount
	acct.TransactionsCount++
	if _, err = s.accounts.UpdateBankAccount(ctx, acct); err != nil {
		return err
	}
	st.PooledBalance -= amount
	if _, err = s.accounts.UpdateBankState(ctx, st); err != nil {
		return err
	}

	if err := s.custody.Push(ctx, key, amount); err != nil {
		if _, rbErr := s.accounts.UpdateBankAccount(ctx, prevAcct); rbErr != nil {
			s.log.WithError(rbErr).WithField("account", key).Error("withdraw rollback failed")
		}
		if _, rbErr := s.accounts.UpdateBankState(ctx, prevState); rbErr != nil {
			s.log.WithError(rbErr).Error("withdraw state rollback failed")
		}
		return fmt.Errorf("%w: %v", ErrCustodyTransfer, err)
	}
	metrics.SetPooledBalance(st.PooledBalance)

	s.recordTransaction(ctx, model.Transaction{
		AccountKey:   key,
		Type:         model.TransactionWithdrawal,
		Amount:       amount,
		BalanceAfter: acct.Balance,
	})
	s.bus.Publish(events.Event{Type: events.Withdrawn, Account: key, Amount: amount})
	return nil
}

// Transfer moves available balance between two active accounts. The pool is
// untouched; this is internal bookkeeping only.
func (s *Service) Transfer(ctx context.Context, from, to string, amount uint64) (err error) {
	defer func() { metrics.RecordOperation("transfer", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, sender, err := s.runningActive(ctx, from)
	if err != nil {
		return err
	}
	recipient, err := s.activeAccount(ctx, to)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return ErrInsufficientBalance
	}

	if from == to {
		sender.TransactionsCount += 2
		if _, err = s.accounts.UpdateBankAccount(ctx, sender); err != nil {
			return err
		}
	} else {
		sender.Balance -= amount
		sender.TransactionsCount++
		recipient.Balance += amount
		recipient.TransactionsCount++
		if err = s.accounts.UpdateBankAccounts(ctx, sender, recipient); err != nil {
			return err
		}
	}

	s.recordTransaction(ctx, model.Transaction{
		AccountKey:   from,
		Type:         model.TransactionTransfer,
		Amount:       amount,
		Counterparty: to,
		BalanceAfter: sender.Balance,
	})
	s.recordTransaction(ctx, model.Transaction{
		AccountKey:   to,
		Type:         model.TransactionTransfer,
		Amount:       amount,
		Counterparty: from,
		BalanceAfter: recipient.Balance,
	})
	s.bus.Publish(events.Event{Type: events.Transferred, Account: to, Sender: from, Amount: amount})
	return nil
}

// DeactivateAccount force-returns the available balance to the holder and
// zeroes the record. Outstanding locks where the account is sender or
// recipient are untouched and keep resolving by key.
func (s *Service) DeactivateAccount(ctx context.Context, key string) (err error) {
	defer func() { metrics.RecordOperation("deactivate_account", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, acct, err := s.runningActive(ctx, key)
	if err != nil {
		return err
	}

	if acct.Balance > 0 {
		if err := s.custody.Push(ctx, key, acct.Balance); err != nil {
			return fmt.Errorf("%w: %v", ErrCustodyTransfer, err)
		}
	}

	if _, err = s.accounts.UpdateBankAccount(ctx, model.BankAccount{Key: key}); err != nil {
		return err
	}

	st.PooledBalance -= acct.Balance
	st.ActiveAccounts--
	if _, err = s.accounts.UpdateBankState(ctx, st); err != nil {
		return err
	}
	metrics.SetPooledBalance(st.PooledBalance)
	metrics.SetActiveAccounts(st.ActiveAccounts)

	s.bus.Publish(events.Event{Type: events.AccountDeactivated, Account: key, Amount: acct.Balance})
	s.log.WithField("account", key).Info("account deactivated")
	return nil
}

// FlipPause toggles the pause gate. Administrator only; there is no direct
// set, only a toggle.
func (s *Service) FlipPause(ctx context.Context, caller string) (err error) {
	defer func() { metrics.RecordOperation("flip_pause", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.accounts.GetBankState(ctx)
	if err != nil {
		return err
	}
	if caller != st.Administrator || st.Administrator == "" {
		return ErrNotAuthorized
	}

	st.Paused = !st.Paused
	if _, err = s.accounts.UpdateBankState(ctx, st); err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.PauseChanged, Account: caller, Paused: st.Paused})
	s.log.WithField("paused", st.Paused).Warn("pause gate flipped")
	return nil
}

// Account returns the ledger record for key.
func (s *Service) Account(ctx context.Context, key string) (model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts.GetBankAccount(ctx, key)
}

// State returns the global ledger state.
func (s *Service) State(ctx context.Context) (model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts.GetBankState(ctx)
}

// Transactions returns the most recent history records for an account,
// newest first.
func (s *Service) Transactions(ctx context.Context, key string, limit int) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs.ListTransactions(ctx, key, limit)
}

// runningActive performs the fixed precondition sequence shared by the
// mutating operations: pause gate first, then account existence.
func (s *Service) runningActive(ctx context.Context, key string) (model.State, model.BankAccount, error) {
	st, err := s.accounts.GetBankState(ctx)
	if err != nil {
		return model.State{}, model.BankAccount{}, err
	}
	if st.Paused {
		return model.State{}, model.BankAccount{}, ErrBankPaused
	}
	acct, err := s.activeAccount(ctx, key)
	if err != nil {
		return model.State{}, model.BankAccount{}, err
	}
	return st, acct, nil
}

func (s *Service) activeAccount(ctx context.Context, key string) (model.BankAccount, error) {
	acct, err := s.accounts.GetBankAccount(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return model.BankAccount{}, ErrAccountNotActive
	}
	if err != nil {
		return model.BankAccount{}, err
	}
	if !acct.Active {
		return model.BankAccount{}, ErrAccountNotActive
	}
	return acct, nil
}

// recordTransaction appends a history record. History is observational; a
// store failure here is logged, never surfaced, so it cannot undo a ledger
// mutation that already happened.
func (s *Service) recordTransaction(ctx context.Context, tx model.Transaction) {
	tx.ID = uuid.New().String()
	tx.CreatedAt = s.now().Unix()
	if _, err := s.txs.CreateTransaction(ctx, tx); err != nil {
		s.log.WithError(err).WithField("account", tx.AccountKey).Error("failed to record transaction")
	}
}
