package domain

import "github.com/google/uuid"

// Game is a catalog entry that owns denominations.
type Game struct {
	ID       uuid.UUID `json:"id"`
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
}

// Denomination is a purchasable package of a game's currency.
type Denomination struct {
	ID              uuid.UUID `json:"id"`
	GameID          uuid.UUID `json:"game_id"`
	GameSlug        string    `json:"game_slug"`
	Name            string    `json:"name"`
	Quantity        int       `json:"quantity"`
	Price           int64     `json:"price"`            // IDR
	FulfillmentCode string    `json:"fulfillment_code"` // provider SKU, empty when not configured
}

// IsSellable returns true if the provider knows how to deliver this denomination.
func (d *Denomination) IsSellable() bool {
	return d.FulfillmentCode != ""
}
