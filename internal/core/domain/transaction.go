package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the payment lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
)

// IsTerminal returns true if no further payment transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted ||
		s == TransactionStatusFailed ||
		s == TransactionStatusCancelled
}

// transitions lists every legal forward move. Terminal states have no entry.
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {
		TransactionStatusProcessing,
		TransactionStatusCompleted,
		TransactionStatusFailed,
		TransactionStatusCancelled,
	},
	TransactionStatusProcessing: {
		TransactionStatusCompleted,
		TransactionStatusFailed,
		TransactionStatusCancelled,
	},
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to TransactionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SourcesFor returns the statuses from which to can be reached.
// Storage uses it as the expected set of a conditional update.
func SourcesFor(to TransactionStatus) []TransactionStatus {
	var from []TransactionStatus
	for _, s := range []TransactionStatus{TransactionStatusPending, TransactionStatusProcessing} {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// FulfillmentStatus tracks delivery of the purchased item, separately from payment.
type FulfillmentStatus string

const (
	FulfillmentNotStarted FulfillmentStatus = "NOT_STARTED"
	FulfillmentInProgress FulfillmentStatus = "IN_PROGRESS"
	FulfillmentPending    FulfillmentStatus = "PENDING" // provider accepted, result not final
	FulfillmentDelivered  FulfillmentStatus = "DELIVERED"
	FulfillmentFailed     FulfillmentStatus = "FAILED"
)

// IsFinal returns true once the provider gave a definitive verdict.
func (f FulfillmentStatus) IsFinal() bool {
	return f == FulfillmentDelivered || f == FulfillmentFailed
}

// IsClaimable returns true if a delivery attempt may be started from this state.
func (f FulfillmentStatus) IsClaimable() bool {
	return f == FulfillmentNotStarted || f == FulfillmentPending
}

// Transaction is a single top-up purchase. Its id doubles as the gateway
// invoice number and the provider reference key.
type Transaction struct {
	ID                   uuid.UUID         `json:"id"`
	UserID               *string           `json:"user_id,omitempty"`
	GameID               uuid.UUID         `json:"game_id"`
	DenominationID       uuid.UUID         `json:"denomination_id"`
	ProductCode          string            `json:"product_code"`
	DestinationAccount   string            `json:"destination_account"`
	DisplayName          *string           `json:"display_name,omitempty"`
	TotalPrice           int64             `json:"total_price"` // IDR, frozen at creation
	PaymentMethod        *string           `json:"payment_method,omitempty"`
	Status               TransactionStatus `json:"status"`
	PaymentSessionToken  *string           `json:"-"`
	PaymentURL           *string           `json:"payment_url,omitempty"`
	PaymentExpiresAt     *time.Time        `json:"payment_expires_at,omitempty"`
	PaymentReference     *string           `json:"payment_reference,omitempty"`
	ProviderResponseEnc  *string           `json:"-"` // AES-256-GCM encrypted raw gateway response
	FulfillmentStatus    FulfillmentStatus `json:"fulfillment_status"`
	FulfillmentReference *string           `json:"fulfillment_reference,omitempty"`
	FulfillmentMessage   *string           `json:"fulfillment_message,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// IsTerminal returns true if the transaction is in a final payment state.
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// CanTransitionTo reports whether the transaction may move to the given status.
func (t *Transaction) CanTransitionTo(to TransactionStatus) bool {
	return CanTransition(t.Status, to)
}

// IsOwnedBy returns true if the transaction was created by userID.
// Anonymous transactions are owned by nobody.
func (t *Transaction) IsOwnedBy(userID string) bool {
	return t.UserID != nil && *t.UserID == userID
}

// IsSettled returns true once neither payment nor fulfillment can change.
func (t *Transaction) IsSettled() bool {
	if !t.IsTerminal() {
		return false
	}
	if t.Status == TransactionStatusCompleted {
		return t.FulfillmentStatus.IsFinal()
	}
	return true
}

// Session returns the stored gateway session, or nil when none was created.
func (t *Transaction) Session() *PaymentSession {
	if t.PaymentSessionToken == nil || t.PaymentURL == nil {
		return nil
	}
	s := &PaymentSession{
		Token:       *t.PaymentSessionToken,
		RedirectURL: *t.PaymentURL,
	}
	if t.PaymentExpiresAt != nil {
		s.ExpiresAt = *t.PaymentExpiresAt
	}
	return s
}

// Snapshot projects the client-visible status fields.
func (t *Transaction) Snapshot() *StatusSnapshot {
	return &StatusSnapshot{
		TransactionID:     t.ID,
		Status:            t.Status,
		PaymentMethod:     t.PaymentMethod,
		Amount:            t.TotalPrice,
		FulfillmentStatus: t.FulfillmentStatus,
		UpdatedAt:         t.UpdatedAt,
	}
}

// StatusSnapshot is the read model served to polling clients.
type StatusSnapshot struct {
	TransactionID     uuid.UUID         `json:"transaction_id"`
	Status            TransactionStatus `json:"status"`
	PaymentMethod     *string           `json:"payment_method"`
	Amount            int64             `json:"amount"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsSettled mirrors Transaction.IsSettled for cached snapshots.
func (s *StatusSnapshot) IsSettled() bool {
	if !s.Status.IsTerminal() {
		return false
	}
	return s.Status != TransactionStatusCompleted || s.FulfillmentStatus.IsFinal()
}
