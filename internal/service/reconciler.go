package service

import (
	"context"
	"fmt"
	"time"

	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/metrics"

	"github.com/rs/zerolog"
)

// ReconcileStats summarises one reconciler pass.
type ReconcileStats struct {
	Checked   int
	Applied   int
	Duplicate int
	Fulfilled int
	Errors    int
}

// Reconciler catches up on transactions whose webhook never arrived and on
// deliveries the provider left pending.
type Reconciler struct {
	txRepo    ports.TransactionRepository
	txSvc     ports.TransactionService
	interval  time.Duration
	minAge    time.Duration
	batchSize int
	log       zerolog.Logger
	now       func() time.Time
}

// NewReconciler creates a new Reconciler.
func NewReconciler(
	txRepo ports.TransactionRepository,
	txSvc ports.TransactionService,
	interval, minAge time.Duration,
	batchSize int,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		txRepo:    txRepo,
		txSvc:     txSvc,
		interval:  interval,
		minAge:    minAge,
		batchSize: batchSize,
		log:       log,
		now:       time.Now,
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Dur("min_age", r.minAge).Msg("reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			stats, err := r.RunOnce(ctx)
			if err != nil {
				r.log.Error().Err(err).Msg("reconciler pass failed")
				continue
			}
			if stats.Checked > 0 {
				r.log.Info().
					Int("checked", stats.Checked).
					Int("applied", stats.Applied).
					Int("duplicate", stats.Duplicate).
					Int("fulfilled", stats.Fulfilled).
					Int("errors", stats.Errors).
					Msg("reconciler pass finished")
			}
		}
	}
}

// RunOnce polls the gateway for stale unsettled transactions, then retries
// stale deliveries. Per-transaction failures are counted, not returned.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	cutoff := r.now().Add(-r.minAge)

	unsettled, err := r.txRepo.ListAwaitingSettlement(ctx, cutoff, r.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list awaiting settlement: %w", err)
	}
	for _, txn := range unsettled {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		res, err := r.txSvc.Reconcile(ctx, txn.ID)
		// Stamp every check so rows that stay unpaid rotate to the back.
		if merr := r.txRepo.MarkReconciled(ctx, txn.ID, r.now().UTC()); merr != nil {
			r.log.Warn().Err(merr).Str("tx_id", txn.ID.String()).Msg("failed to stamp reconcile check")
		}
		switch {
		case err != nil:
			stats.Errors++
			metrics.RecordReconcileCheck("error")
			r.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("reconcile check failed")
		case res.Duplicate:
			stats.Duplicate++
			metrics.RecordReconcileCheck("duplicate")
		case res.Applied:
			stats.Applied++
			metrics.RecordReconcileCheck("applied")
		default:
			metrics.RecordReconcileCheck("unchanged")
		}
	}

	undelivered, err := r.txRepo.ListAwaitingFulfillment(ctx, cutoff, r.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list awaiting fulfillment: %w", err)
	}
	for _, txn := range undelivered {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		if _, err := r.txSvc.Fulfill(ctx, txn.ID); err != nil {
			if !apperror.HasCode(err, apperror.CodeFulfillmentInProgress) {
				stats.Errors++
				r.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("fulfillment retry failed")
			}
			continue
		}
		stats.Fulfilled++
	}

	return stats, nil
}
