package service

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler periodically re-confirms recent Mercado Pago payments whose
// webhook and return redirect may both have been lost.
type Reconciler struct {
	mp       MercadoPagoService
	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

func NewReconciler(mp MercadoPagoService, interval, window time.Duration) *Reconciler {
	return &Reconciler{
		mp:       mp,
		interval: interval,
		window:   window,
		now:      time.Now,
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	until := r.now()
	return r.mp.Reconcile(ctx, until.Add(-r.window), until)
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables it.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("reconciliation loop started", "interval", r.interval, "window", r.window)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
			}
		}
	}
}
