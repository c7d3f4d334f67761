package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func strPtr(s string) *string { return &s }

// memTxRepo is an in-memory ports.TransactionRepository with the same
// compare-and-set semantics as the Postgres implementation.
type memTxRepo struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]domain.Transaction
	reconciled map[uuid.UUID]time.Time
	now        func() time.Time
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{
		rows:       make(map[uuid.UUID]domain.Transaction),
		reconciled: make(map[uuid.UUID]time.Time),
		now:        time.Now,
	}
}

func (r *memTxRepo) put(t domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[t.ID] = t
}

func (r *memTxRepo) get(id uuid.UUID) domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *memTxRepo) Create(_ context.Context, t *domain.Transaction) error {
	r.put(*t)
	return nil
}

func (r *memTxRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memTxRepo) update(id uuid.UUID, cond func(*domain.Transaction) bool, apply func(*domain.Transaction)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	if !ok || !cond(&t) {
		return false
	}
	apply(&t)
	t.UpdatedAt = r.now().UTC()
	r.rows[id] = t
	return true
}

func (r *memTxRepo) SetPaymentMethod(_ context.Context, id uuid.UUID, method string) (bool, error) {
	return r.update(id,
		func(t *domain.Transaction) bool {
			return t.Status == domain.TransactionStatusPending &&
				(t.PaymentMethod == nil || *t.PaymentMethod == method)
		},
		func(t *domain.Transaction) { t.PaymentMethod = &method },
	), nil
}

func (r *memTxRepo) SaveSession(_ context.Context, id uuid.UUID, s *domain.PaymentSession) error {
	r.update(id,
		func(t *domain.Transaction) bool { return t.Status == domain.TransactionStatusPending },
		func(t *domain.Transaction) {
			t.PaymentSessionToken = &s.Token
			t.PaymentURL = &s.RedirectURL
			exp := s.ExpiresAt
			t.PaymentExpiresAt = &exp
		},
	)
	return nil
}

func (r *memTxRepo) TransitionStatus(_ context.Context, p ports.TransitionParams) (bool, error) {
	return r.update(p.ID,
		func(t *domain.Transaction) bool {
			for _, from := range p.From {
				if t.Status == from {
					return true
				}
			}
			return false
		},
		func(t *domain.Transaction) {
			t.Status = p.To
			if p.PaymentReference != nil {
				t.PaymentReference = p.PaymentReference
			}
			if p.ProviderResponseEnc != nil {
				t.ProviderResponseEnc = p.ProviderResponseEnc
			}
		},
	), nil
}

func (r *memTxRepo) ClaimFulfillment(_ context.Context, id uuid.UUID) (bool, error) {
	return r.update(id,
		func(t *domain.Transaction) bool {
			return t.Status == domain.TransactionStatusCompleted && t.FulfillmentStatus.IsClaimable()
		},
		func(t *domain.Transaction) { t.FulfillmentStatus = domain.FulfillmentInProgress },
	), nil
}

func (r *memTxRepo) ReleaseFulfillment(_ context.Context, id uuid.UUID, to domain.FulfillmentStatus) error {
	r.update(id,
		func(t *domain.Transaction) bool { return t.FulfillmentStatus == domain.FulfillmentInProgress },
		func(t *domain.Transaction) { t.FulfillmentStatus = to },
	)
	return nil
}

func (r *memTxRepo) RecordFulfillment(_ context.Context, id uuid.UUID, res *domain.FulfillmentResult) (bool, error) {
	return r.update(id,
		func(t *domain.Transaction) bool { return t.FulfillmentStatus == domain.FulfillmentInProgress },
		func(t *domain.Transaction) {
			t.FulfillmentStatus = res.Status
			t.FulfillmentReference = res.Reference
			msg := res.Message
			t.FulfillmentMessage = &msg
		},
	), nil
}

func (r *memTxRepo) ReleaseStaleClaim(_ context.Context, id uuid.UUID, olderThan time.Time) (bool, error) {
	return r.update(id,
		func(t *domain.Transaction) bool {
			return t.Status == domain.TransactionStatusCompleted &&
				t.FulfillmentStatus == domain.FulfillmentInProgress &&
				t.UpdatedAt.Before(olderThan)
		},
		func(t *domain.Transaction) { t.FulfillmentStatus = domain.FulfillmentPending },
	), nil
}

func (r *memTxRepo) MarkReconciled(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciled[id] = at
	return nil
}

// list filters and orders rows by key, oldest first. Callers hold r.mu.
func (r *memTxRepo) list(match func(domain.Transaction) bool, key func(domain.Transaction) time.Time, olderThan time.Time, limit int) []domain.Transaction {
	var out []domain.Transaction
	for _, t := range r.rows {
		if match(t) && key(t).Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]).Before(key(out[j])) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *memTxRepo) ListAwaitingSettlement(_ context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lastChecked := func(t domain.Transaction) time.Time {
		if at, ok := r.reconciled[t.ID]; ok {
			return at
		}
		return t.UpdatedAt
	}
	return r.list(func(t domain.Transaction) bool {
		return !t.IsTerminal() && t.PaymentMethod != nil
	}, lastChecked, olderThan, limit), nil
}

func (r *memTxRepo) ListAwaitingFulfillment(_ context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(t domain.Transaction) bool {
		return t.Status == domain.TransactionStatusCompleted && t.FulfillmentStatus.IsClaimable()
	}, func(t domain.Transaction) time.Time { return t.UpdatedAt }, olderThan, limit), nil
}

// ctxTxRepo fails writes on a done context the way a real driver does.
type ctxTxRepo struct {
	*memTxRepo
}

func (r ctxTxRepo) ReleaseFulfillment(ctx context.Context, id uuid.UUID, to domain.FulfillmentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.memTxRepo.ReleaseFulfillment(ctx, id, to)
}

func (r ctxTxRepo) RecordFulfillment(ctx context.Context, id uuid.UUID, res *domain.FulfillmentResult) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.memTxRepo.RecordFulfillment(ctx, id, res)
}

// memEvents captures recorded events synchronously.
type memEvents struct {
	mu     sync.Mutex
	events []domain.TransactionEvent
}

func (m *memEvents) Record(_ context.Context, ev *domain.TransactionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
}

func (m *memEvents) count(kind domain.EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
