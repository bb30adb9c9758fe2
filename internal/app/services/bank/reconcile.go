package bank

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/bloxify/blxbank/internal/custody"
	"github.com/bloxify/blxbank/internal/logging"
	"github.com/bloxify/blxbank/internal/metrics"
)

// Reconciler periodically checks that the ledger's pooled balance still
// mirrors the custody adapter's true total. Drift means bookkeeping and
// custody have diverged; the sweep reports it, it never corrects it.
type Reconciler struct {
	svc     *Service
	adapter custody.Adapter
	cron    *cron.Cron
	log     *logging.Logger
}

// NewReconciler creates a sweep on the given cron schedule.
func NewReconciler(svc *Service, adapter custody.Adapter, schedule string) (*Reconciler, error) {
	r := &Reconciler{
		svc:     svc,
		adapter: adapter,
		cron:    cron.New(),
		log:     logging.New("reconciler"),
	}

	if _, err := r.cron.AddFunc(schedule, func() {
		if err := r.RunOnce(context.Background()); err != nil {
			r.log.WithError(err).Error("reconciliation sweep failed")
		}
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the scheduled sweeps.
func (r *Reconciler) Start() {
	r.cron.Start()
	r.log.Info("reconciliation sweep scheduled")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce compares pooled balance against the custodied total and records
// the drift. A non-zero drift is logged at error level.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	st, err := r.svc.State(ctx)
	if err != nil {
		return err
	}
	custodied, err := r.adapter.Balance(ctx)
	if err != nil {
		return err
	}

	metrics.SetReconcileDrift(st.PooledBalance, custodied)
	if st.PooledBalance != custodied {
		r.log.WithFields(map[string]any{
			"pooled":    st.PooledBalance,
			"custodied": custodied,
		}).Error("pooled balance diverged from custody")
		return nil
	}

	r.log.WithField("pooled", st.PooledBalance).Debug("reconciliation clean")
	return nil
}
