package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a recorded lifecycle event.
type EventKind string

const (
	EventCreated        EventKind = "CREATED"
	EventMethodSelected EventKind = "METHOD_SELECTED"
	EventSessionCreated EventKind = "SESSION_CREATED"
	EventGatewayResult  EventKind = "GATEWAY_RESULT"
	EventDuplicate      EventKind = "DUPLICATE_EVENT"
	EventCancelled      EventKind = "CANCELLED"
	EventFulfillment    EventKind = "FULFILLMENT"
	EventAuthFailure    EventKind = "AUTH_FAILURE"
	EventAmountMismatch EventKind = "AMOUNT_MISMATCH"
	EventClaimReleased  EventKind = "CLAIM_RELEASED"
)

// TransactionEvent is an append-only record of something that happened to a transaction.
type TransactionEvent struct {
	ID            uuid.UUID          `json:"id"`
	TransactionID *uuid.UUID         `json:"transaction_id,omitempty"` // nil for rejected webhooks
	Kind          EventKind          `json:"kind"`
	FromStatus    *TransactionStatus `json:"from_status,omitempty"`
	ToStatus      *TransactionStatus `json:"to_status,omitempty"`
	Detail        string             `json:"detail,omitempty"` // JSON string
	CreatedAt     time.Time          `json:"created_at"`
}
