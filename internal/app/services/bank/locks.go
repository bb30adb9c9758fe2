package bank

import (
	"context"
	"errors"
	"math/big"

	model "github.com/bloxify/blxbank/internal/app/domain/bank"
	"github.com/bloxify/blxbank/internal/app/domain/locker"
	"github.com/bloxify/blxbank/internal/app/storage"
	"github.com/bloxify/blxbank/internal/events"
	"github.com/bloxify/blxbank/internal/metrics"
)

// LockFixed reclassifies amount of the sender's available balance into a
// cliff lock for the recipient: nothing is claimable before end, the full
// principal at or after it. The recorded start is creation time plus one and
// carries no claim semantics.
func (s *Service) LockFixed(ctx context.Context, sender, recipient string, amount uint64, end int64) (index uint64, err error) {
	defer func() { metrics.RecordOperation("lock_fixed", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockTokens(ctx, sender, recipient, amount, s.now().Unix()+1, end, false)
}

// LockVesting creates a linear vesting lock releasing amount between start
// and end. The start may already be in the past, so a schedule can be
// partially elapsed at creation.
func (s *Service) LockVesting(ctx context.Context, sender, recipient string, amount uint64, start, end int64) (index uint64, err error) {
	defer func() { metrics.RecordOperation("lock_vesting", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockTokens(ctx, sender, recipient, amount, start, end, true)
}

func (s *Service) lockTokens(ctx context.Context, senderKey, recipientKey string, amount uint64, start, end int64, vesting bool) (uint64, error) {
	_, sender, err := s.runningActive(ctx, senderKey)
	if err != nil {
		return 0, err
	}
	recipient, err := s.activeAccount(ctx, recipientKey)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrZeroAmount
	}
	if end <= s.now().Unix() || (vesting && end <= start) {
		return 0, ErrEndTimeNotInFuture
	}
	if sender.Balance < amount {
		return 0, ErrInsufficientBalance
	}

	index, err := s.nextLockIndex(ctx, recipientKey, recipient.LocksCount)
	if err != nil {
		return 0, err
	}

	lk := locker.Lock{
		Recipient: recipientKey,
		Index:     index,
		Sender:    senderKey,
		Start:     start,
		Vesting:   vesting,
		End:       end,
		Amount:    amount,
	}
	if _, err := s.locks.CreateLock(ctx, lk); err != nil {
		return 0, err
	}

	if senderKey == recipientKey {
		sender.Balance -= amount
		sender.LockedBalance += amount
		sender.LocksCount = index
		sender.TransactionsCount += 2
		if _, err := s.accounts.UpdateBankAccount(ctx, sender); err != nil {
			return 0, err
		}
		recipient = sender
	} else {
		sender.Balance -= amount
		sender.TransactionsCount++
		recipient.LockedBalance += amount
		recipient.LocksCount = index
		recipient.TransactionsCount++
		if err := s.accounts.UpdateBankAccounts(ctx, sender, recipient); err != nil {
			return 0, err
		}
	}

	s.recordTransaction(ctx, model.Transaction{
		AccountKey:   senderKey,
		Type:         model.TransactionLock,
		Amount:       amount,
		Counterparty: recipientKey,
		LockIndex:    index,
		BalanceAfter: sender.Balance,
	})
	s.bus.Publish(events.Event{
		Type:      events.Locked,
		Account:   recipientKey,
		Sender:    senderKey,
		Amount:    amount,
		LockIndex: index,
		Vesting:   vesting,
	})
	return index, nil
}

// nextLockIndex returns the next unused 1-based index for the recipient.
// The account counter zeroes when the account is deactivated, but lock
// records survive; probe forward past any survivors so an index is never
// reused and stale references never alias a new lock.
func (s *Service) nextLockIndex(ctx context.Context, recipient string, counted uint64) (uint64, error) {
	index := counted + 1
	for {
		_, err := s.locks.GetLock(ctx, recipient, index)
		if errors.Is(err, storage.ErrNotFound) {
			return index, nil
		}
		if err != nil {
			return 0, err
		}
		index++
	}
}

// Claim releases the currently claimable portion of the caller's lock at
// index into the caller's available balance and returns the released amount.
func (s *Service) Claim(ctx context.Context, caller string, index uint64) (released uint64, err error) {
	defer func() { metrics.RecordOperation("claim", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, acct, err := s.runningActive(ctx, caller)
	if err != nil {
		return 0, err
	}

	lk, err := s.lookupLock(ctx, caller, index)
	if err != nil {
		return 0, err
	}
	if lk.Exhausted() {
		return 0, ErrLockExhausted
	}

	claimable := claimableAt(lk, s.now().Unix())
	if claimable == 0 {
		if !lk.Vesting {
			return 0, ErrNotYetMatured
		}
		return 0, ErrNothingToClaim
	}

	lk.Claimed += claimable
	if _, err = s.locks.UpdateLock(ctx, lk); err != nil {
		return 0, err
	}

	acct.Balance += claimable
	// The locked counter zeroes at deactivation while the lock record
	// survives, so the decrement saturates.
	if acct.LockedBalance >= claimable {
		acct.LockedBalance -= claimable
	} else {
		acct.LockedBalance = 0
	}
	acct.TransactionsCount++
	if _, err = s.accounts.UpdateBankAccount(ctx, acct); err != nil {
		return 0, err
	}

	s.recordTransaction(ctx, model.Transaction{
		AccountKey:   caller,
		Type:         model.TransactionClaim,
		Amount:       claimable,
		Counterparty: lk.Sender,
		LockIndex:    index,
		BalanceAfter: acct.Balance,
	})
	s.bus.Publish(events.Event{
		Type:      events.Claimed,
		Account:   caller,
		Amount:    claimable,
		LockIndex: index,
		Vesting:   lk.Vesting,
	})
	return claimable, nil
}

// ClaimableAmount reports what a claim at the current time would release.
// Pure read; never blocked by the pause gate.
func (s *Service) ClaimableAmount(ctx context.Context, recipient string, index uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lk, err := s.lookupLock(ctx, recipient, index)
	if err != nil {
		return 0, err
	}
	return claimableAt(lk, s.now().Unix()), nil
}

// ClaimedAmount returns the cumulative amount already released from a lock.
func (s *Service) ClaimedAmount(ctx context.Context, recipient string, index uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lk, err := s.lookupLock(ctx, recipient, index)
	if err != nil {
		return 0, err
	}
	return lk.Claimed, nil
}

// TotalLockedBalance returns the recipient's outstanding locked balance.
// Unknown accounts report zero.
func (s *Service) TotalLockedBalance(ctx context.Context, recipient string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accounts.GetBankAccount(ctx, recipient)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.LockedBalance, nil
}

// Lock returns the lock record at (recipient, index).
func (s *Service) Lock(ctx context.Context, recipient string, index uint64) (locker.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLock(ctx, recipient, index)
}

// Locks returns all lock records for a recipient, in index order.
func (s *Service) Locks(ctx context.Context, recipient string) ([]locker.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks.ListLocks(ctx, recipient)
}

func (s *Service) lookupLock(ctx context.Context, recipient string, index uint64) (locker.Lock, error) {
	if index == 0 {
		return locker.Lock{}, ErrNoSuchLock
	}
	lk, err := s.locks.GetLock(ctx, recipient, index)
	if errors.Is(err, storage.ErrNotFound) {
		return locker.Lock{}, ErrNoSuchLock
	}
	if err != nil {
		return locker.Lock{}, err
	}
	return lk, nil
}

// claimableAt computes the claimable amount for a lock at the given time.
// Cliff locks release the full remaining principal at or after end. Vesting
// locks release proportionally with truncating division; the truncation
// remainder is recovered at end, where the vested amount is exact.
func claimableAt(lk locker.Lock, now int64) uint64 {
	if !lk.Vesting {
		if now < lk.End {
			return 0
		}
		return lk.Remaining()
	}

	elapsed := now - lk.Start
	if elapsed <= 0 {
		return 0
	}
	window := lk.End - lk.Start
	if elapsed >= window {
		return lk.Remaining()
	}

	// amount * elapsed can overflow uint64 for large principals, so the
	// proportion is computed in big integers.
	vested := new(big.Int).SetUint64(lk.Amount)
	vested.Mul(vested, big.NewInt(elapsed))
	vested.Div(vested, big.NewInt(window))

	v := vested.Uint64()
	if v <= lk.Claimed {
		return 0
	}
	return v - lk.Claimed
}
