package app

import (
	"context"
	"errors"

	bankservice "github.com/bloxify/blxbank/internal/app/services/bank"
	"github.com/bloxify/blxbank/internal/app/storage"
	"github.com/bloxify/blxbank/internal/app/storage/memory"
	"github.com/bloxify/blxbank/internal/custody"
	"github.com/bloxify/blxbank/internal/events"
	"github.com/bloxify/blxbank/internal/logging"
)

// Stores groups the persistence interfaces the application needs. Any nil
// field is backed by a shared in-memory store, so tests and local runs need
// no database.
type Stores struct {
	Bank         storage.BankStore
	Locks        storage.LockStore
	Transactions storage.TransactionStore
}

// Options configures the application.
type Options struct {
	Stores  Stores
	Custody custody.Adapter
	// Administrator is the account key holding the pause gate. The ledger
	// is initialized with it on startup; an already initialized ledger
	// keeps its recorded administrator.
	Administrator string
	// ReconcileSchedule is a cron expression for the custody sweep. Empty
	// disables the sweep.
	ReconcileSchedule string
}

// Application wires the ledger service, event bus, and reconciliation sweep.
type Application struct {
	Bank       *bankservice.Service
	Bus        *events.Bus
	Reconciler *bankservice.Reconciler

	log *logging.Logger
}

// New builds the application from options, filling in defaults.
func New(opts Options) (*Application, error) {
	var shared *memory.Store
	defaultStore := func() *memory.Store {
		if shared == nil {
			shared = memory.New()
		}
		return shared
	}

	if opts.Stores.Bank == nil {
		opts.Stores.Bank = defaultStore()
	}
	if opts.Stores.Locks == nil {
		opts.Stores.Locks = defaultStore()
	}
	if opts.Stores.Transactions == nil {
		opts.Stores.Transactions = defaultStore()
	}
	if opts.Custody == nil {
		opts.Custody = custody.NewVault()
	}

	bus := events.NewBus()
	svc := bankservice.NewService(opts.Stores.Bank, opts.Stores.Locks, opts.Stores.Transactions, opts.Custody, bus)

	app := &Application{
		Bank: svc,
		Bus:  bus,
		log:  logging.New("app"),
	}

	if opts.ReconcileSchedule != "" {
		rec, err := bankservice.NewReconciler(svc, opts.Custody, opts.ReconcileSchedule)
		if err != nil {
			return nil, err
		}
		app.Reconciler = rec
	}

	if opts.Administrator != "" {
		err := svc.Initialize(context.Background(), opts.Administrator)
		if err != nil && !errors.Is(err, bankservice.ErrAlreadyInitialized) {
			return nil, err
		}
		if errors.Is(err, bankservice.ErrAlreadyInitialized) {
			app.log.Debug("ledger already initialized, keeping recorded administrator")
		}
	}

	return app, nil
}

// Start launches the background components.
func (a *Application) Start() {
	if a.Reconciler != nil {
		a.Reconciler.Start()
	}
	a.log.Info("application started")
}

// Stop halts the background components and waits for them to finish.
func (a *Application) Stop() {
	if a.Reconciler != nil {
		a.Reconciler.Stop()
	}
	a.log.Info("application stopped")
}
