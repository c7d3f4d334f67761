package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"topup-storefront/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureComponents are the header values covered by a gateway signature.
type SignatureComponents struct {
	ClientID      string
	RequestID     string
	Timestamp     string
	RequestTarget string
	Body          []byte
}

// SignatureCodec is the single implementation of gateway request signing.
// Outbound requests and inbound notifications both go through it.
type SignatureCodec interface {
	Digest(body []byte) string
	Sign(c SignatureComponents, secretKey string) string
	Verify(received string, c SignatureComponents, secretKey string) bool
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles identity token operations.
type TokenService interface {
	Generate(userID string) (string, time.Time, error)
	Validate(tokenString string) (*IdentityClaims, error)
}

// IdentityClaims holds the verified caller identity.
type IdentityClaims struct {
	UserID string
}

// StatusCache holds settled status snapshots (fast path for pollers).
type StatusCache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.StatusSnapshot, error) // nil on miss
	Set(ctx context.Context, snapshot *domain.StatusSnapshot, ttl time.Duration) error
}

// NotificationLedger remembers gateway notifications that were fully processed.
type NotificationLedger interface {
	Seen(ctx context.Context, requestID string) (bool, error)
	Remember(ctx context.Context, requestID string, ttl time.Duration) error
}

// --- External provider ports ---

// PaymentGateway talks to the payment gateway. It never mutates transactions.
type PaymentGateway interface {
	CreatePaymentSession(ctx context.Context, tx *domain.Transaction, method string) (*domain.PaymentSession, error)
	VerifyInboundNotification(headers http.Header, rawBody []byte) (*domain.GatewayEvent, error)
	CheckStatus(ctx context.Context, invoiceNumber string) (*domain.GatewayEvent, error)
}

// FulfillmentProvider talks to the top-up provider.
type FulfillmentProvider interface {
	ValidateDestination(ctx context.Context, productCode, destination string) (*domain.DestinationCheck, error)
	Deliver(ctx context.Context, req domain.DeliveryRequest) (*domain.FulfillmentResult, error)
}

// --- Service Ports (Business Logic) ---

// EventRecorder writes lifecycle events without blocking the caller.
type EventRecorder interface {
	Record(ctx context.Context, event *domain.TransactionEvent)
}

// TransactionService is the transaction state machine.
type TransactionService interface {
	Create(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error)
	SelectPaymentMethod(ctx context.Context, id uuid.UUID, method string) (*domain.PaymentSession, error)
	ApplyGatewayResult(ctx context.Context, result GatewayResult) (*ApplyResult, error)
	Cancel(ctx context.Context, req CancelRequest) (*domain.Transaction, error)
	Fulfill(ctx context.Context, id uuid.UUID) (*domain.FulfillmentResult, error)
	Reconcile(ctx context.Context, id uuid.UUID) (*ApplyResult, error)
	ReleaseStaleClaim(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	Inspect(ctx context.Context, id uuid.UUID) (*TransactionDetail, error)
}

// CreateTransactionRequest holds validated input for a new purchase.
type CreateTransactionRequest struct {
	UserID             *string
	GameID             uuid.UUID
	DenominationID     uuid.UUID
	DestinationAccount string
	DisplayName        *string
}

// GatewayResult is an authenticated payment verdict to apply.
type GatewayResult struct {
	TransactionID     uuid.UUID
	GatewayStatus     string
	ProviderResponse  []byte
	ProviderReference *string
	Amount            int64  // as reported by the gateway; 0 when absent
	Source            string // "webhook", "reconcile"
}

// ApplyResult reports what ApplyGatewayResult did.
type ApplyResult struct {
	TransactionID    uuid.UUID                 `json:"transaction_id"`
	Status           domain.TransactionStatus  `json:"status"`
	Applied          bool                      `json:"applied"`
	Duplicate        bool                      `json:"duplicate"`
	Fulfillment      *domain.FulfillmentResult `json:"fulfillment,omitempty"`
	FulfillmentError string                    `json:"fulfillment_error,omitempty"`
}

// TransactionDetail is the operator view of a transaction, including the
// decrypted gateway response.
type TransactionDetail struct {
	Transaction      *domain.Transaction `json:"transaction"`
	ProviderResponse json.RawMessage     `json:"provider_response,omitempty"`
}

// CancelRequest holds input for cancellation. A non-nil UserID restricts
// cancellation to the transaction owner.
type CancelRequest struct {
	TransactionID uuid.UUID
	UserID        *string
	Reason        string
}

// StatusService is the client-facing read path.
type StatusService interface {
	GetStatus(ctx context.Context, id uuid.UUID) (*domain.StatusSnapshot, error)
	Poll(ctx context.Context, id uuid.UUID) (*PollResult, error)
}

// PollResult is the outcome of a bounded wait for a terminal status.
type PollResult struct {
	Snapshot     *domain.StatusSnapshot `json:"snapshot"`
	StillPending bool                   `json:"still_pending"`
	Attempts     int                    `json:"attempts"`
}

// DestinationService is the advisory pre-purchase account check.
type DestinationService interface {
	Validate(ctx context.Context, req ValidateDestinationRequest) (*domain.DestinationCheck, error)
}

// ValidateDestinationRequest identifies what is being bought and for whom.
type ValidateDestinationRequest struct {
	GameID             uuid.UUID
	DenominationID     uuid.UUID
	DestinationAccount string
}
