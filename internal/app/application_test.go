package app

import (
	"context"
	"testing"

	"github.com/bloxify/blxbank/internal/app/storage/memory"
)

func TestNewDefaultsToMemory(t *testing.T) {
	a, err := New(Options{Administrator: "admin"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	st, err := a.Bank.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Administrator != "admin" {
		t.Fatalf("administrator = %q, want admin", st.Administrator)
	}

	if err := a.Bank.CreateAccount(context.Background(), "alice"); err != nil {
		t.Fatalf("create account on default store: %v", err)
	}
}

func TestNewKeepsExistingAdministrator(t *testing.T) {
	store := memory.New()
	shared := Stores{Bank: store, Locks: store, Transactions: store}

	if _, err := New(Options{Stores: shared, Administrator: "admin"}); err != nil {
		t.Fatalf("new: %v", err)
	}

	// Rebuilding over the same store must not replace the administrator.
	b, err := New(Options{Stores: shared, Administrator: "usurper"})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	st, err := b.Bank.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Administrator != "admin" {
		t.Fatalf("administrator = %q, want admin", st.Administrator)
	}
}

func TestReconcileScheduleValidation(t *testing.T) {
	if _, err := New(Options{ReconcileSchedule: "not a schedule"}); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	a, err := New(Options{ReconcileSchedule: "@every 1m"})
	if err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
	a.Start()
	a.Stop()
}
