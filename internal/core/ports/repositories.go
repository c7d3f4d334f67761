package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"topup-storefront/internal/core/domain"

	"github.com/google/uuid"
)

// CatalogStore is the read-only view of games and denominations.
type CatalogStore interface {
	// GetActiveDenomination returns nil, nil unless both the game and the
	// denomination are active and the denomination belongs to the game.
	GetActiveDenomination(ctx context.Context, gameID, denominationID uuid.UUID) (*domain.Denomination, error)
}

// TransactionRepository defines persistence operations for transactions.
// Every mutating method is a single conditional UPDATE and reports whether
// this caller won it.
type TransactionRepository interface {
	Create(ctx context.Context, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)

	// SetPaymentMethod records method while the transaction is PENDING and
	// either has no method or already has the same one.
	SetPaymentMethod(ctx context.Context, id uuid.UUID, method string) (bool, error)
	// SaveSession stores the gateway session of a PENDING transaction.
	SaveSession(ctx context.Context, id uuid.UUID, session *domain.PaymentSession) error
	// TransitionStatus moves status to params.To only if it is one of params.From.
	TransitionStatus(ctx context.Context, params TransitionParams) (bool, error)

	// ClaimFulfillment moves a COMPLETED transaction from NOT_STARTED or PENDING to IN_PROGRESS.
	ClaimFulfillment(ctx context.Context, id uuid.UUID) (bool, error)
	// ReleaseFulfillment hands an IN_PROGRESS claim back as the given status.
	ReleaseFulfillment(ctx context.Context, id uuid.UUID, to domain.FulfillmentStatus) error
	// RecordFulfillment stores the provider verdict on an IN_PROGRESS claim.
	RecordFulfillment(ctx context.Context, id uuid.UUID, result *domain.FulfillmentResult) (bool, error)
	// ReleaseStaleClaim moves an IN_PROGRESS claim last touched before
	// olderThan back to PENDING.
	ReleaseStaleClaim(ctx context.Context, id uuid.UUID, olderThan time.Time) (bool, error)

	// ListAwaitingSettlement returns PENDING/PROCESSING transactions with a
	// payment method whose last reconcile check (or last update, if never
	// checked) is before olderThan, least recently checked first.
	ListAwaitingSettlement(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error)
	// MarkReconciled stamps a reconcile check without touching updated_at.
	MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListAwaitingFulfillment returns COMPLETED transactions whose delivery is
	// NOT_STARTED or PENDING and were last touched before olderThan.
	ListAwaitingFulfillment(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error)
}

// TransitionParams describes one conditional status update.
type TransitionParams struct {
	ID                  uuid.UUID
	From                []domain.TransactionStatus
	To                  domain.TransactionStatus
	PaymentReference    *string
	ProviderResponseEnc *string
}

// EventRepository persists the transaction event log.
type EventRepository interface {
	Create(ctx context.Context, event *domain.TransactionEvent) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.TransactionEvent, error)
}
