package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DestinationSeparator joins a game user id and its zone/server id.
const DestinationSeparator = "|"

// ComposeDestination builds the stored destination account.
func ComposeDestination(accountID, zoneID string) string {
	accountID = strings.TrimSpace(accountID)
	zoneID = strings.TrimSpace(zoneID)
	if zoneID == "" {
		return accountID
	}
	return accountID + DestinationSeparator + zoneID
}

// CustomerNumber flattens a destination into the provider's customer number.
func CustomerNumber(destination string) string {
	return strings.ReplaceAll(destination, DestinationSeparator, "")
}

// DeliveryRequest asks the top-up provider to deliver one purchase.
type DeliveryRequest struct {
	ProductCode    string
	Destination    string
	IdempotencyKey string // the transaction id
}

// FulfillmentResult is the provider's verdict on a delivery.
type FulfillmentResult struct {
	Status    FulfillmentStatus `json:"status"`
	Reference *string           `json:"reference,omitempty"` // serial number
	Message   string            `json:"message,omitempty"`
	Cost      decimal.Decimal   `json:"cost"`
}

// DestinationCheck is the advisory answer to an account lookup.
type DestinationCheck struct {
	Valid       bool    `json:"valid"`
	DisplayName *string `json:"display_name,omitempty"`
	Message     string  `json:"message,omitempty"`
}
