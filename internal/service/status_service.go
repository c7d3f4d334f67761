package service

import (
	"context"
	"fmt"
	"time"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StatusServiceImpl implements ports.StatusService. It never mutates a
// transaction; settled snapshots are served from the cache when possible.
type StatusServiceImpl struct {
	txRepo      ports.TransactionRepository
	cache       ports.StatusCache
	cacheTTL    time.Duration
	interval    time.Duration
	maxAttempts int
	log         zerolog.Logger
}

// NewStatusService creates a new StatusServiceImpl. cache may be nil.
func NewStatusService(
	txRepo ports.TransactionRepository,
	cache ports.StatusCache,
	cacheTTL time.Duration,
	interval time.Duration,
	maxAttempts int,
	log zerolog.Logger,
) *StatusServiceImpl {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &StatusServiceImpl{
		txRepo:      txRepo,
		cache:       cache,
		cacheTTL:    cacheTTL,
		interval:    interval,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// GetStatus returns the client-visible status of a transaction.
func (s *StatusServiceImpl) GetStatus(ctx context.Context, id uuid.UUID) (*domain.StatusSnapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("tx_id", id.String()).Msg("status cache read failed, falling through to DB")
		}
		if snap != nil {
			return snap, nil
		}
	}

	txn, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}

	snap := txn.Snapshot()
	if s.cache != nil && snap.IsSettled() {
		if err := s.cache.Set(ctx, snap, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("tx_id", id.String()).Msg("failed to cache settled status")
		}
	}
	return snap, nil
}

// Poll re-reads the status every interval until the payment is terminal,
// the attempt budget is spent or ctx ends. Running out is not an error:
// the result is flagged StillPending.
func (s *StatusServiceImpl) Poll(ctx context.Context, id uuid.UUID) (*ports.PollResult, error) {
	for attempt := 1; ; attempt++ {
		snap, err := s.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap.Status.IsTerminal() {
			return &ports.PollResult{Snapshot: snap, Attempts: attempt}, nil
		}
		if attempt >= s.maxAttempts {
			return &ports.PollResult{Snapshot: snap, StillPending: true, Attempts: attempt}, nil
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ports.PollResult{Snapshot: snap, StillPending: true, Attempts: attempt}, nil
		case <-timer.C:
		}
	}
}
