// Package bank holds the custodial ledger domain models.
package bank

// BankAccount is the ledger record for a single account key. Amounts are in
// the asset's smallest unit; timestamps are unix seconds.
type BankAccount struct {
	Key               string `json:"key"`
	Balance           uint64 `json:"balance"`
	LockedBalance     uint64 `json:"locked_balance"`
	CreatedAt         int64  `json:"created_at"`
	LocksCount        uint64 `json:"locks_count"`
	TransactionsCount uint64 `json:"transactions_count"`
	Active            bool   `json:"active"`
}

// State is the global ledger state. PooledBalance mirrors the custody
// adapter's total and must equal the sum of all account balances plus locked
// balances.
type State struct {
	PooledBalance  uint64 `json:"pooled_balance"`
	ActiveAccounts uint64 `json:"active_accounts"`
	Paused         bool   `json:"paused"`
	Administrator  string `json:"administrator"`
}

// Transaction types recorded in the ledger history.
const (
	TransactionDeposit    = "deposit"
	TransactionWithdrawal = "withdrawal"
	TransactionTransfer   = "transfer"
	TransactionLock       = "lock"
	TransactionClaim      = "claim"
)

// Transaction is an append-only history record written for every
// balance-affecting operation touching an account.
type Transaction struct {
	ID           string `json:"id"`
	AccountKey   string `json:"account_key"`
	Type         string `json:"type"`
	Amount       uint64 `json:"amount"`
	Counterparty string `json:"counterparty,omitempty"`
	LockIndex    uint64 `json:"lock_index,omitempty"`
	BalanceAfter uint64 `json:"balance_after"`
	CreatedAt    int64  `json:"created_at"`
}
