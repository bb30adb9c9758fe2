// Package postgres implements the storage interfaces over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/bloxify/blxbank/internal/app/domain/bank"
	"github.com/bloxify/blxbank/internal/app/domain/locker"
	"github.com/bloxify/blxbank/internal/app/storage"
)

// Store is the PostgreSQL-backed store.
type Store struct {
	db *sql.DB
}

var _ storage.BankStore = (*Store)(nil)
var _ storage.LockStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)

// Open connects to the database and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// BankStore implementation ----------------------------------------------------

const accountColumns = "key, balance, locked_balance, created_at, locks_count, transactions_count, active"

func (s *Store) CreateBankAccount(ctx context.Context, acct bank.BankAccount) (bank.BankAccount, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blx_accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acct.Key, acct.Balance, acct.LockedBalance, acct.CreatedAt,
		acct.LocksCount, acct.TransactionsCount, acct.Active)
	if err != nil {
		return bank.BankAccount{}, fmt.Errorf("insert account: %w", err)
	}
	return acct, nil
}

func (s *Store) UpdateBankAccount(ctx context.Context, acct bank.BankAccount) (bank.BankAccount, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE blx_accounts SET balance = $2, locked_balance = $3, created_at = $4,
		 locks_count = $5, transactions_count = $6, active = $7 WHERE key = $1`,
		acct.Key, acct.Balance, acct.LockedBalance, acct.CreatedAt,
		acct.LocksCount, acct.TransactionsCount, acct.Active)
	if err != nil {
		return bank.BankAccount{}, fmt.Errorf("update account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return bank.BankAccount{}, fmt.Errorf("account %s: %w", acct.Key, storage.ErrNotFound)
	}
	return acct, nil
}

// UpdateBankAccounts applies all updates in one transaction, so a transfer or
// lock can never strand one side of the movement.
func (s *Store) UpdateBankAccounts(ctx context.Context, accts ...bank.BankAccount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, acct := range accts {
		res, err := tx.ExecContext(ctx,
			`UPDATE blx_accounts SET balance = $2, locked_balance = $3, created_at = $4,
			 locks_count = $5, transactions_count = $6, active = $7 WHERE key = $1`,
			acct.Key, acct.Balance, acct.LockedBalance, acct.CreatedAt,
			acct.LocksCount, acct.TransactionsCount, acct.Active)
		if err != nil {
			return fmt.Errorf("update account %s: %w", acct.Key, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("account %s: %w", acct.Key, storage.ErrNotFound)
		}
	}
	return tx.Commit()
}

func (s *Store) GetBankAccount(ctx context.Context, key string) (bank.BankAccount, error) {
	var acct bank.BankAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM blx_accounts WHERE key = $1`, key).
		Scan(&acct.Key, &acct.Balance, &acct.LockedBalance, &acct.CreatedAt,
			&acct.LocksCount, &acct.TransactionsCount, &acct.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return bank.BankAccount{}, fmt.Errorf("account %s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return bank.BankAccount{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

func (s *Store) ListBankAccounts(ctx context.Context) ([]bank.BankAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM blx_accounts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var result []bank.BankAccount
	for rows.Next() {
		var acct bank.BankAccount
		if err := rows.Scan(&acct.Key, &acct.Balance, &acct.LockedBalance, &acct.CreatedAt,
			&acct.LocksCount, &acct.TransactionsCount, &acct.Active); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

func (s *Store) GetBankState(ctx context.Context) (bank.State, error) {
	var st bank.State
	err := s.db.QueryRowContext(ctx,
		`SELECT pooled_balance, active_accounts, paused, administrator FROM blx_state WHERE id = 1`).
		Scan(&st.PooledBalance, &st.ActiveAccounts, &st.Paused, &st.Administrator)
	if errors.Is(err, sql.ErrNoRows) {
		return bank.State{}, fmt.Errorf("bank state: %w", storage.ErrNotFound)
	}
	if err != nil {
		return bank.State{}, fmt.Errorf("get state: %w", err)
	}
	return st, nil
}

func (s *Store) UpdateBankState(ctx context.Context, st bank.State) (bank.State, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blx_state (id, pooled_balance, active_accounts, paused, administrator)
		 VALUES (1, $1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET pooled_balance = $1, active_accounts = $2, paused = $3, administrator = $4`,
		st.PooledBalance, st.ActiveAccounts, st.Paused, st.Administrator)
	if err != nil {
		return bank.State{}, fmt.Errorf("update state: %w", err)
	}
	return st, nil
}

// LockStore implementation ----------------------------------------------------

const lockColumns = "recipient, lock_index, sender, start_at, vesting, end_at, amount, claimed"

func (s *Store) CreateLock(ctx context.Context, lk locker.Lock) (locker.Lock, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blx_locks (recipient, lock_index, sender, start_at, vesting, end_at, amount, claimed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		lk.Recipient, lk.Index, lk.Sender, lk.Start, lk.Vesting, lk.End, lk.Amount, lk.Claimed)
	if err != nil {
		return locker.Lock{}, fmt.Errorf("insert lock: %w", err)
	}
	return lk, nil
}

func (s *Store) UpdateLock(ctx context.Context, lk locker.Lock) (locker.Lock, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE blx_locks SET claimed = $3 WHERE recipient = $1 AND lock_index = $2`,
		lk.Recipient, lk.Index, lk.Claimed)
	if err != nil {
		return locker.Lock{}, fmt.Errorf("update lock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return locker.Lock{}, fmt.Errorf("lock %s/%d: %w", lk.Recipient, lk.Index, storage.ErrNotFound)
	}
	return lk, nil
}

func (s *Store) GetLock(ctx context.Context, recipient string, index uint64) (locker.Lock, error) {
	var lk locker.Lock
	err := s.db.QueryRowContext(ctx,
		`SELECT `+lockColumns+` FROM blx_locks WHERE recipient = $1 AND lock_index = $2`,
		recipient, index).
		Scan(&lk.Recipient, &lk.Index, &lk.Sender, &lk.Start, &lk.Vesting, &lk.End, &lk.Amount, &lk.Claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return locker.Lock{}, fmt.Errorf("lock %s/%d: %w", recipient, index, storage.ErrNotFound)
	}
	if err != nil {
		return locker.Lock{}, fmt.Errorf("get lock: %w", err)
	}
	return lk, nil
}

func (s *Store) ListLocks(ctx context.Context, recipient string) ([]locker.Lock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lockColumns+` FROM blx_locks WHERE recipient = $1 ORDER BY lock_index`, recipient)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var result []locker.Lock
	for rows.Next() {
		var lk locker.Lock
		if err := rows.Scan(&lk.Recipient, &lk.Index, &lk.Sender, &lk.Start, &lk.Vesting,
			&lk.End, &lk.Amount, &lk.Claimed); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		result = append(result, lk)
	}
	return result, rows.Err()
}

// TransactionStore implementation ---------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, tx bank.Transaction) (bank.Transaction, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blx_transactions (id, account_key, type, amount, counterparty, lock_index, balance_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tx.ID, tx.AccountKey, tx.Type, tx.Amount, tx.Counterparty, tx.LockIndex, tx.BalanceAfter, tx.CreatedAt)
	if err != nil {
		return bank.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountKey string, limit int) ([]bank.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_key, type, amount, counterparty, lock_index, balance_after, created_at
		 FROM blx_transactions WHERE account_key = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		accountKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var result []bank.Transaction
	for rows.Next() {
		var tx bank.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountKey, &tx.Type, &tx.Amount, &tx.Counterparty,
			&tx.LockIndex, &tx.BalanceAfter, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}
