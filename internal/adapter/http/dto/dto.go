package dto

import (
	"time"

	"topup-storefront/internal/core/domain"
)

// CreateTransactionRequest is the body of POST /api/v1/transactions.
type CreateTransactionRequest struct {
	GameID         string  `json:"game_id" binding:"required,uuid"`
	DenominationID string  `json:"denomination_id" binding:"required,uuid"`
	AccountID      string  `json:"account_id" binding:"required,game_account"`
	ZoneID         string  `json:"zone_id,omitempty" binding:"omitempty,game_account,max=16"`
	DisplayName    *string `json:"display_name,omitempty" binding:"omitempty,max=64"`
}

// SelectPaymentRequest is the body of POST /api/v1/transactions/:id/payment.
type SelectPaymentRequest struct {
	Method string `json:"method" binding:"required,payment_method"`
}

// CancelRequest is the optional body of the cancel endpoints.
type CancelRequest struct {
	Reason string `json:"reason,omitempty" binding:"max=255"`
}

// ValidateDestinationRequest is the body of POST /api/v1/destinations/validate.
type ValidateDestinationRequest struct {
	GameID         string `json:"game_id" binding:"required,uuid"`
	DenominationID string `json:"denomination_id" binding:"required,uuid"`
	AccountID      string `json:"account_id" binding:"required,game_account"`
	ZoneID         string `json:"zone_id,omitempty" binding:"omitempty,game_account,max=16"`
}

// TransactionResponse is the client view of a transaction.
type TransactionResponse struct {
	ID                 string  `json:"id"`
	GameID             string  `json:"game_id"`
	DenominationID     string  `json:"denomination_id"`
	DestinationAccount string  `json:"destination_account"`
	DisplayName        *string `json:"display_name,omitempty"`
	TotalPrice         int64   `json:"total_price"`
	PaymentMethod      *string `json:"payment_method,omitempty"`
	Status             string  `json:"status"`
	FulfillmentStatus  string  `json:"fulfillment_status"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// PaymentSessionResponse tells the client where to pay.
type PaymentSessionResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	ExpiresAt   string `json:"expires_at"`
}

// StatusResponse is returned by the status endpoint. StillPending is only
// set when the caller asked to wait and the payment did not settle in time.
type StatusResponse struct {
	*domain.StatusSnapshot
	StillPending bool `json:"still_pending,omitempty"`
}

// ToTransactionResponse converts a domain.Transaction to its DTO.
func ToTransactionResponse(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                 tx.ID.String(),
		GameID:             tx.GameID.String(),
		DenominationID:     tx.DenominationID.String(),
		DestinationAccount: tx.DestinationAccount,
		DisplayName:        tx.DisplayName,
		TotalPrice:         tx.TotalPrice,
		PaymentMethod:      tx.PaymentMethod,
		Status:             string(tx.Status),
		FulfillmentStatus:  string(tx.FulfillmentStatus),
		CreatedAt:          tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          tx.UpdatedAt.Format(time.RFC3339),
	}
}

// ToPaymentSessionResponse converts a domain.PaymentSession to its DTO.
func ToPaymentSessionResponse(s *domain.PaymentSession) PaymentSessionResponse {
	return PaymentSessionResponse{
		Token:       s.Token,
		RedirectURL: s.RedirectURL,
		ExpiresAt:   s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
