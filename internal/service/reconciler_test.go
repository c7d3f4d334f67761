package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/internal/core/ports/mocks"
	"topup-storefront/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupReconciler(t *testing.T) (*Reconciler, *mocks.MockTransactionRepository, *mocks.MockTransactionService, time.Time) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTransactionRepository(ctrl)
	txSvc := mocks.NewMockTransactionService(ctrl)
	r := NewReconciler(repo, txSvc, time.Minute, 5*time.Minute, 10, newTestLogger())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, repo, txSvc, now.Add(-5 * time.Minute)
}

func TestReconciler_RunOnce_ClassifiesOutcomes(t *testing.T) {
	r, repo, txSvc, cutoff := setupReconciler(t)
	ctx := context.Background()

	applied, dup, unchanged, broken := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	repo.EXPECT().ListAwaitingSettlement(ctx, cutoff, 10).Return([]domain.Transaction{
		{ID: applied}, {ID: dup}, {ID: unchanged}, {ID: broken},
	}, nil)
	repo.EXPECT().ListAwaitingFulfillment(ctx, cutoff, 10).Return(nil, nil)

	txSvc.EXPECT().Reconcile(ctx, applied).Return(&ports.ApplyResult{Applied: true}, nil)
	txSvc.EXPECT().Reconcile(ctx, dup).Return(&ports.ApplyResult{Duplicate: true}, nil)
	txSvc.EXPECT().Reconcile(ctx, unchanged).Return(&ports.ApplyResult{Status: domain.TransactionStatusPending}, nil)
	txSvc.EXPECT().Reconcile(ctx, broken).Return(nil, apperror.ErrAdapter("payment gateway", errors.New("503")))
	for _, id := range []uuid.UUID{applied, dup, unchanged, broken} {
		repo.EXPECT().MarkReconciled(ctx, id, cutoff.Add(5*time.Minute)).Return(nil)
	}

	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileStats{Checked: 4, Applied: 1, Duplicate: 1, Errors: 1}, stats)
}

func TestReconciler_RunOnce_RetriesDeliveries(t *testing.T) {
	r, repo, txSvc, cutoff := setupReconciler(t)
	ctx := context.Background()

	ok, busy, failing := uuid.New(), uuid.New(), uuid.New()
	repo.EXPECT().ListAwaitingSettlement(ctx, cutoff, 10).Return(nil, nil)
	repo.EXPECT().ListAwaitingFulfillment(ctx, cutoff, 10).Return([]domain.Transaction{
		{ID: ok}, {ID: busy}, {ID: failing},
	}, nil)

	txSvc.EXPECT().Fulfill(ctx, ok).Return(&domain.FulfillmentResult{Status: domain.FulfillmentDelivered}, nil)
	txSvc.EXPECT().Fulfill(ctx, busy).Return(nil, apperror.ErrFulfillmentInProgress())
	txSvc.EXPECT().Fulfill(ctx, failing).Return(nil, apperror.ErrAdapter("fulfillment provider", errors.New("timeout")))

	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, 1, stats.Fulfilled)
	assert.Equal(t, 1, stats.Errors)
}

func TestReconciler_RunOnce_ListError(t *testing.T) {
	r, repo, _, cutoff := setupReconciler(t)
	ctx := context.Background()

	repo.EXPECT().ListAwaitingSettlement(ctx, cutoff, 10).Return(nil, errors.New("db down"))

	_, err := r.RunOnce(ctx)
	assert.Error(t, err)
}

func TestReconciler_RunOnce_StopsOnCancelledContext(t *testing.T) {
	r, repo, _, cutoff := setupReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())

	repo.EXPECT().
		ListAwaitingSettlement(ctx, cutoff, 10).
		DoAndReturn(func(context.Context, time.Time, int) ([]domain.Transaction, error) {
			cancel()
			return []domain.Transaction{{ID: uuid.New()}}, nil
		})

	_, err := r.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconciler_RunOnce_StampFailureDoesNotStopPass(t *testing.T) {
	r, repo, txSvc, cutoff := setupReconciler(t)
	ctx := context.Background()

	first, second := uuid.New(), uuid.New()
	repo.EXPECT().ListAwaitingSettlement(ctx, cutoff, 10).Return([]domain.Transaction{{ID: first}, {ID: second}}, nil)
	repo.EXPECT().ListAwaitingFulfillment(ctx, cutoff, 10).Return(nil, nil)
	txSvc.EXPECT().Reconcile(ctx, first).Return(&ports.ApplyResult{Applied: true}, nil)
	txSvc.EXPECT().Reconcile(ctx, second).Return(&ports.ApplyResult{Applied: true}, nil)
	repo.EXPECT().MarkReconciled(ctx, first, gomock.Any()).Return(errors.New("conn reset"))
	repo.EXPECT().MarkReconciled(ctx, second, gomock.Any()).Return(nil)

	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Applied)
}

func TestReconciler_AbandonedSessionsDoNotStarvePaidOnes(t *testing.T) {
	d := setupTransactionService(t)
	ctx := context.Background()

	abandoned := d.seed(domain.TransactionStatusPending, domain.FulfillmentNotStarted)
	row := d.repo.get(abandoned.ID)
	row.UpdatedAt = time.Now().Add(-3 * time.Hour)
	d.repo.put(row)

	paid := d.seed(domain.TransactionStatusPending, domain.FulfillmentNotStarted)
	row = d.repo.get(paid.ID)
	row.UpdatedAt = time.Now().Add(-2 * time.Hour)
	d.repo.put(row)

	d.gateway.EXPECT().CheckStatus(gomock.Any(), abandoned.ID.String()).
		Return(&domain.GatewayEvent{Status: domain.GatewayStatusPending}, nil).AnyTimes()
	d.gateway.EXPECT().CheckStatus(gomock.Any(), paid.ID.String()).
		Return(&domain.GatewayEvent{Status: domain.GatewayStatusSuccess, Amount: 20000}, nil)
	d.provider.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(delivered("SN-P"), nil)

	r := NewReconciler(d.repo, d.svc, time.Minute, 5*time.Minute, 1, newTestLogger())
	for pass := 0; pass < 5; pass++ {
		_, err := r.RunOnce(ctx)
		require.NoError(t, err)
		if d.repo.get(paid.ID).Status == domain.TransactionStatusCompleted {
			break
		}
	}

	stored := d.repo.get(paid.ID)
	assert.Equal(t, domain.TransactionStatusCompleted, stored.Status)
	assert.Equal(t, domain.FulfillmentDelivered, stored.FulfillmentStatus)
	assert.Equal(t, domain.TransactionStatusPending, d.repo.get(abandoned.ID).Status)
}

func TestReconciler_CancelsLapsedSessions(t *testing.T) {
	d := setupTransactionService(t)
	ctx := context.Background()

	txn := d.seed(domain.TransactionStatusPending, domain.FulfillmentNotStarted)
	row := d.repo.get(txn.ID)
	expired := time.Now().Add(-2 * time.Hour)
	row.PaymentExpiresAt = &expired
	row.UpdatedAt = time.Now().Add(-3 * time.Hour)
	d.repo.put(row)

	d.gateway.EXPECT().CheckStatus(gomock.Any(), txn.ID.String()).
		Return(&domain.GatewayEvent{Status: domain.GatewayStatusPending}, nil)

	r := NewReconciler(d.repo, d.svc, time.Minute, 5*time.Minute, 1, newTestLogger())
	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, domain.TransactionStatusCancelled, d.repo.get(txn.ID).Status)

	// Terminal now, so it leaves the scan.
	stats, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Checked)
}

func TestReconciler_EndToEnd_SettlesMissedWebhook(t *testing.T) {
	d := setupTransactionService(t)
	ctx := context.Background()

	txn := d.seed(domain.TransactionStatusPending, domain.FulfillmentNotStarted)
	stale := d.repo.get(txn.ID)
	stale.UpdatedAt = time.Now().Add(-time.Hour)
	d.repo.put(stale)

	fresh := d.seed(domain.TransactionStatusPending, domain.FulfillmentNotStarted)
	_ = fresh

	d.gateway.EXPECT().CheckStatus(gomock.Any(), txn.ID.String()).Return(&domain.GatewayEvent{Status: "SUCCESS"}, nil)
	d.provider.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(delivered("SN-R"), nil)

	r := NewReconciler(d.repo, d.svc, time.Minute, 5*time.Minute, 10, newTestLogger())
	stats, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 1, stats.Applied)

	stored := d.repo.get(txn.ID)
	assert.Equal(t, domain.TransactionStatusCompleted, stored.Status)
	assert.Equal(t, domain.FulfillmentDelivered, stored.FulfillmentStatus)
	assert.Equal(t, domain.TransactionStatusPending, d.repo.get(fresh.ID).Status)
}

func TestReconciler_Run_StopsWithContext(t *testing.T) {
	r, repo, _, _ := setupReconciler(t)
	r.interval = 5 * time.Millisecond
	repo.EXPECT().ListAwaitingSettlement(gomock.Any(), gomock.Any(), 10).Return(nil, nil).AnyTimes()
	repo.EXPECT().ListAwaitingFulfillment(gomock.Any(), gomock.Any(), 10).Return(nil, nil).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after context cancellation")
	}
}
