package service

import (
	"context"
	"fmt"
	"strings"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"

	"github.com/rs/zerolog"
)

// DestinationServiceImpl implements ports.DestinationService.
type DestinationServiceImpl struct {
	catalog  ports.CatalogStore
	provider ports.FulfillmentProvider
	log      zerolog.Logger
}

// NewDestinationService creates a new DestinationServiceImpl.
func NewDestinationService(catalog ports.CatalogStore, provider ports.FulfillmentProvider, log zerolog.Logger) *DestinationServiceImpl {
	return &DestinationServiceImpl{catalog: catalog, provider: provider, log: log}
}

// Validate asks the provider whether the destination account exists for
// the denomination's product. The answer is advisory only.
func (s *DestinationServiceImpl) Validate(ctx context.Context, req ports.ValidateDestinationRequest) (*domain.DestinationCheck, error) {
	destination := strings.TrimSpace(req.DestinationAccount)
	if destination == "" {
		return nil, apperror.Validation("destination_account is required")
	}

	denom, err := s.catalog.GetActiveDenomination(ctx, req.GameID, req.DenominationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup denomination: %w", err))
	}
	if denom == nil || !denom.IsSellable() {
		return nil, apperror.ErrNotFound("denomination")
	}

	check, err := s.provider.ValidateDestination(ctx, denom.FulfillmentCode, destination)
	if err != nil {
		s.log.Warn().Err(err).Str("product_code", denom.FulfillmentCode).Msg("destination inquiry failed")
		return nil, asAdapterError("fulfillment provider", err)
	}
	return check, nil
}
