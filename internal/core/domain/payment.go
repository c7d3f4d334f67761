package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentSession is the hosted checkout created at the gateway.
type PaymentSession struct {
	Token       string    `json:"token"`
	RedirectURL string    `json:"redirect_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the session can no longer be paid.
// A zero expiry means the gateway did not return one.
func (s *PaymentSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Gateway status vocabulary (DOKU).
const (
	GatewayStatusSuccess    = "SUCCESS"
	GatewayStatusFailed     = "FAILED"
	GatewayStatusExpired    = "EXPIRED"
	GatewayStatusPending    = "PENDING"
	GatewayStatusProcessing = "PROCESSING"
)

// GatewayEvent is an authenticated statement from the payment gateway about an invoice.
type GatewayEvent struct {
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Channel       string `json:"channel,omitempty"`
	Reference     string `json:"reference,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	Raw           []byte `json:"-"`
}

// TransactionID parses the invoice number back into a transaction id.
func (e *GatewayEvent) TransactionID() (uuid.UUID, error) {
	return uuid.Parse(e.InvoiceNumber)
}

// MapGatewayStatus translates the gateway vocabulary into a transaction status.
// In-flight answers map to PROCESSING; anything unknown is treated as a decline.
func MapGatewayStatus(gatewayStatus string) TransactionStatus {
	switch strings.ToUpper(strings.TrimSpace(gatewayStatus)) {
	case GatewayStatusSuccess:
		return TransactionStatusCompleted
	case GatewayStatusExpired:
		return TransactionStatusCancelled
	case GatewayStatusPending, GatewayStatusProcessing:
		return TransactionStatusProcessing
	default:
		return TransactionStatusFailed
	}
}
