package bank

import (
	"context"
	"errors"
	"testing"
)

func TestLockFixedBookkeeping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 500)
	f.createFunded(t, bob, 0)

	index, err := f.svc.LockFixed(ctx, alice, bob, 100, f.clock+100)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if index != 1 {
		t.Fatalf("first lock index = %d, want 1", index)
	}

	sender, _ := f.svc.Account(ctx, alice)
	recipient, _ := f.svc.Account(ctx, bob)
	if sender.Balance != 400 {
		t.Fatalf("sender balance = %d, want 400", sender.Balance)
	}
	if recipient.LockedBalance != 100 || recipient.LocksCount != 1 {
		t.Fatalf("recipient after lock: %+v", recipient)
	}
	if sender.TransactionsCount != 2 || recipient.TransactionsCount != 1 {
		t.Fatalf("transaction counts = %d/%d, want 2/1", sender.TransactionsCount, recipient.TransactionsCount)
	}

	lk, err := f.svc.Lock(ctx, bob, index)
	if err != nil {
		t.Fatalf("get lock: %v", err)
	}
	if lk.Sender != alice || lk.Amount != 100 || lk.Vesting || lk.Claimed != 0 {
		t.Fatalf("unexpected lock record: %+v", lk)
	}
	if lk.Start != f.clock+1 {
		t.Fatalf("fixed lock start = %d, want %d", lk.Start, f.clock+1)
	}
	f.checkConservation(t)
}

func TestLockValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 100)
	f.createFunded(t, bob, 0)

	if _, err := f.svc.LockFixed(ctx, alice, bob, 0, f.clock+100); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero amount: expected ErrZeroAmount, got %v", err)
	}
	if _, err := f.svc.LockFixed(ctx, alice, bob, 10, f.clock); !errors.Is(err, ErrEndTimeNotInFuture) {
		t.Fatalf("end == now: expected ErrEndTimeNotInFuture, got %v", err)
	}
	if _, err := f.svc.LockFixed(ctx, alice, bob, 101, f.clock+100); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over balance: expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := f.svc.LockVesting(ctx, alice, bob, 10, f.clock+200, f.clock+100); !errors.Is(err, ErrEndTimeNotInFuture) {
		t.Fatalf("end before start: expected ErrEndTimeNotInFuture, got %v", err)
	}
	if _, err := f.svc.LockFixed(ctx, alice, "unknown", 10, f.clock+100); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("inactive recipient: expected ErrAccountNotActive, got %v", err)
	}

	// No failed attempt moved anything.
	sender, _ := f.svc.Account(ctx, alice)
	if sender.Balance != 100 || sender.TransactionsCount != 1 {
		t.Fatalf("failed locks mutated the sender: %+v", sender)
	}
	f.checkConservation(t)
}

func TestFixedLockCliff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 100)
	f.createFunded(t, bob, 0)

	index, err := f.svc.LockFixed(ctx, alice, bob, 100, f.clock+100)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Nothing claimable mid-window.
	f.advance(50)
	claimable, err := f.svc.ClaimableAmount(ctx, bob, index)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if claimable != 0 {
		t.Fatalf("claimable mid-window = %d, want 0", claimable)
	}
	if _, err := f.svc.Claim(ctx, bob, index); !errors.Is(err, ErrNotYetMatured) {
		t.Fatalf("early claim: expected ErrNotYetMatured, got %v", err)
	}

	// Full principal after maturity.
	f.advance(51)
	claimable, _ = f.svc.ClaimableAmount(ctx, bob, index)
	if claimable != 100 {
		t.Fatalf("claimable after maturity = %d, want 100", claimable)
	}
	released, err := f.svc.Claim(ctx, bob, index)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if released != 100 {
		t.Fatalf("released = %d, want 100", released)
	}

	acct, _ := f.svc.Account(ctx, bob)
	if acct.Balance != 100 || acct.LockedBalance != 0 {
		t.Fatalf("recipient after claim: %+v", acct)
	}

	// A second claim distinguishes exhaustion from immaturity.
	if _, err := f.svc.Claim(ctx, bob, index); !errors.Is(err, ErrLockExhausted) {
		t.Fatalf("second claim: expected ErrLockExhausted, got %v", err)
	}
	f.checkConservation(t)
}

func TestLinearVestingHalves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 100)
	f.createFunded(t, bob, 0)

	start := f.clock
	index, err := f.svc.LockVesting(ctx, alice, bob, 100, start, start+200)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Halfway through the window, half the principal has vested.
	f.advance(100)
	claimable, err := f.svc.ClaimableAmount(ctx, bob, index)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if claimable != 50 {
		t.Fatalf("claimable at midpoint = %d, want 50", claimable)
	}
	released, err := f.svc.Claim(ctx, bob, index)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if released != 50 {
		t.Fatalf("first claim released %d, want 50", released)
	}

	// Immediately claiming again has nothing newly vested.
	if _, err := f.svc.Claim(ctx, bob, index); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("immediate reclaim: expected ErrNothingToClaim, got %v", err)
	}

	// The remainder is exact at the end of the window.
	f.advance(100)
	released, err = f.svc.Claim(ctx, bob, index)
	if err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if released != 50 {
		t.Fatalf("final claim released %d, want 50", released)
	}

	claimed, err := f.svc.ClaimedAmount(ctx, bob, index)
	if err != nil {
		t.Fatalf("claimed amount: %v", err)
	}
	if claimed != 100 {
		t.Fatalf("cumulative claimed = %d, want 100", claimed)
	}
	acct, _ := f.svc.Account(ctx, bob)
	if acct.Balance != 100 || acct.LockedBalance != 0 {
		t.Fatalf("recipient after full claim: %+v", acct)
	}
	f.checkConservation(t)
}

func TestVestingTruncationRecoveredAtEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 10)
	f.createFunded(t, bob, 0)

	// 10 over a 3-second window does not divide evenly.
	start := f.clock
	index, err := f.svc.LockVesting(ctx, alice, bob, 10, start, start+3)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	f.advance(1)
	claimable, _ := f.svc.ClaimableAmount(ctx, bob, index)
	if claimable != 3 { // 10*1/3 truncates
		t.Fatalf("claimable at 1s = %d, want 3", claimable)
	}
	if _, err := f.svc.Claim(ctx, bob, index); err != nil {
		t.Fatalf("claim: %v", err)
	}

	f.advance(2)
	released, err := f.svc.Claim(ctx, bob, index)
	if err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if released != 7 {
		t.Fatalf("final claim released %d, want 7", released)
	}
	f.checkConservation(t)
}

func TestVestingBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 100)
	f.createFunded(t, bob, 0)

	// Schedule starting in the future.
	index, err := f.svc.LockVesting(ctx, alice, bob, 100, f.clock+50, f.clock+150)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	claimable, err := f.svc.ClaimableAmount(ctx, bob, index)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if claimable != 0 {
		t.Fatalf("claimable before start = %d, want 0", claimable)
	}
	if _, err := f.svc.Claim(ctx, bob, index); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("claim before start: expected ErrNothingToClaim, got %v", err)
	}
}

func TestVestingAlreadyElapsedAtCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 100)
	f.createFunded(t, bob, 0)

	// Start in the past: half the window has already elapsed.
	index, err := f.svc.LockVesting(ctx, alice, bob, 100, f.clock-100, f.clock+100)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	claimable, _ := f.svc.ClaimableAmount(ctx, bob, index)
	if claimable != 50 {
		t.Fatalf("claimable at creation = %d, want 50", claimable)
	}
}

func TestClaimErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 100)
	f.createFunded(t, bob, 0)

	if _, err := f.svc.Claim(ctx, bob, 1); !errors.Is(err, ErrNoSuchLock) {
		t.Fatalf("no locks yet: expected ErrNoSuchLock, got %v", err)
	}
	if _, err := f.svc.ClaimableAmount(ctx, bob, 0); !errors.Is(err, ErrNoSuchLock) {
		t.Fatalf("index 0: expected ErrNoSuchLock, got %v", err)
	}

	index, err := f.svc.LockFixed(ctx, alice, bob, 10, f.clock+10)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := f.svc.Claim(ctx, bob, index+1); !errors.Is(err, ErrNoSuchLock) {
		t.Fatalf("index past count: expected ErrNoSuchLock, got %v", err)
	}
}

func TestLockIndicesNeverReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 300)
	f.createFunded(t, bob, 0)

	first, err := f.svc.LockFixed(ctx, alice, bob, 50, f.clock+100)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	second, err := f.svc.LockFixed(ctx, alice, bob, 50, f.clock+100)
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("indices = %d, %d, want 1, 2", first, second)
	}

	// Deactivation zeroes the recipient's counters but old lock records
	// survive. New locks after re-activation must not alias them.
	if err := f.svc.DeactivateAccount(ctx, bob); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.svc.CreateAccount(ctx, bob); err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	third, err := f.svc.LockFixed(ctx, alice, bob, 50, f.clock+100)
	if err != nil {
		t.Fatalf("third lock: %v", err)
	}
	if third != 3 {
		t.Fatalf("post-reactivation index = %d, want 3", third)
	}

	old, err := f.svc.Lock(ctx, bob, first)
	if err != nil {
		t.Fatalf("old lock lookup: %v", err)
	}
	if old.Amount != 50 || old.Index != first {
		t.Fatalf("old lock record aliased: %+v", old)
	}
}

func TestClaimSurvivesRecipientDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 100)
	f.createFunded(t, bob, 0)

	index, err := f.svc.LockFixed(ctx, alice, bob, 100, f.clock+100)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	if err := f.svc.DeactivateAccount(ctx, bob); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.svc.CreateAccount(ctx, bob); err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	f.advance(101)
	released, err := f.svc.Claim(ctx, bob, index)
	if err != nil {
		t.Fatalf("claim after reactivation: %v", err)
	}
	if released != 100 {
		t.Fatalf("released = %d, want 100", released)
	}

	acct, _ := f.svc.Account(ctx, bob)
	if acct.Balance != 100 {
		t.Fatalf("balance after claim = %d, want 100", acct.Balance)
	}
	// The locked counter was zeroed at deactivation; the claim decrement
	// saturates instead of underflowing.
	if acct.LockedBalance != 0 {
		t.Fatalf("locked balance = %d, want 0", acct.LockedBalance)
	}
}

func TestClaimSenderDeactivationIrrelevant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 100)
	f.createFunded(t, bob, 0)

	index, err := f.svc.LockFixed(ctx, alice, bob, 60, f.clock+10)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := f.svc.DeactivateAccount(ctx, alice); err != nil {
		t.Fatalf("deactivate sender: %v", err)
	}

	f.advance(11)
	released, err := f.svc.Claim(ctx, bob, index)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if released != 60 {
		t.Fatalf("released = %d, want 60", released)
	}
}

func TestTotalLockedBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createFunded(t, alice, 300)
	f.createFunded(t, bob, 0)

	if _, err := f.svc.LockFixed(ctx, alice, bob, 100, f.clock+100); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := f.svc.LockVesting(ctx, alice, bob, 50, f.clock, f.clock+200); err != nil {
		t.Fatalf("vesting lock: %v", err)
	}

	locked, err := f.svc.TotalLockedBalance(ctx, bob)
	if err != nil {
		t.Fatalf("total locked: %v", err)
	}
	if locked != 150 {
		t.Fatalf("total locked = %d, want 150", locked)
	}

	unknown, err := f.svc.TotalLockedBalance(ctx, "unknown")
	if err != nil || unknown != 0 {
		t.Fatalf("unknown account locked = %d, %v; want 0, nil", unknown, err)
	}

	locks, err := f.svc.Locks(ctx, bob)
	if err != nil {
		t.Fatalf("list locks: %v", err)
	}
	if len(locks) != 2 || locks[0].Index != 1 || locks[1].Index != 2 {
		t.Fatalf("unexpected lock list: %+v", locks)
	}
}
