package postgres

import (
	"context"
	"errors"
	"fmt"

	"topup-storefront/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CatalogRepo implements ports.CatalogStore.
type CatalogRepo struct {
	pool Pool
}

// NewCatalogRepo creates a new CatalogRepo.
func NewCatalogRepo(pool Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

// GetActiveDenomination returns nil, nil unless the denomination and its game
// are both active and the denomination belongs to gameID.
func (r *CatalogRepo) GetActiveDenomination(ctx context.Context, gameID, denominationID uuid.UUID) (*domain.Denomination, error) {
	query := `SELECT d.id, d.game_id, g.slug, d.name, d.quantity, d.price, COALESCE(d.fulfillment_code, '')
		FROM denominations d
		JOIN games g ON g.id = d.game_id
		WHERE d.id = $1 AND d.game_id = $2 AND d.is_active AND g.is_active`

	d := &domain.Denomination{}
	err := r.pool.QueryRow(ctx, query, denominationID, gameID).Scan(
		&d.ID, &d.GameID, &d.GameSlug, &d.Name, &d.Quantity, &d.Price, &d.FulfillmentCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active denomination: %w", err)
	}
	return d, nil
}
