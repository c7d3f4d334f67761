package service

import (
	"context"
	"errors"
	"testing"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/internal/core/ports/mocks"
	"topup-storefront/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDestinationService_Validate(t *testing.T) {
	denom := testDenomination(15000)

	tests := []struct {
		name      string
		dest      string
		setup     func(c *mocks.MockCatalogStore, p *mocks.MockFulfillmentProvider)
		wantValid bool
		wantCode  string
	}{
		{
			name: "valid account",
			dest: "12345678|2001",
			setup: func(c *mocks.MockCatalogStore, p *mocks.MockFulfillmentProvider) {
				c.EXPECT().GetActiveDenomination(gomock.Any(), denom.GameID, denom.ID).Return(denom, nil)
				p.EXPECT().ValidateDestination(gomock.Any(), "ML86", "12345678|2001").
					Return(&domain.DestinationCheck{Valid: true, DisplayName: strPtr("PlayerOne")}, nil)
			},
			wantValid: true,
		},
		{
			name: "unknown account",
			dest: "000",
			setup: func(c *mocks.MockCatalogStore, p *mocks.MockFulfillmentProvider) {
				c.EXPECT().GetActiveDenomination(gomock.Any(), denom.GameID, denom.ID).Return(denom, nil)
				p.EXPECT().ValidateDestination(gomock.Any(), "ML86", "000").
					Return(&domain.DestinationCheck{Valid: false, Message: "Nomor tujuan salah"}, nil)
			},
		},
		{
			name:     "empty destination",
			dest:     "  ",
			setup:    func(*mocks.MockCatalogStore, *mocks.MockFulfillmentProvider) {},
			wantCode: apperror.CodeValidation,
		},
		{
			name: "inactive denomination",
			dest: "123",
			setup: func(c *mocks.MockCatalogStore, _ *mocks.MockFulfillmentProvider) {
				c.EXPECT().GetActiveDenomination(gomock.Any(), denom.GameID, denom.ID).Return(nil, nil)
			},
			wantCode: apperror.CodeNotFound,
		},
		{
			name: "provider unreachable",
			dest: "123",
			setup: func(c *mocks.MockCatalogStore, p *mocks.MockFulfillmentProvider) {
				c.EXPECT().GetActiveDenomination(gomock.Any(), denom.GameID, denom.ID).Return(denom, nil)
				p.EXPECT().ValidateDestination(gomock.Any(), "ML86", "123").Return(nil, errors.New("dial tcp: timeout"))
			},
			wantCode: apperror.CodeAdapter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			catalog := mocks.NewMockCatalogStore(ctrl)
			provider := mocks.NewMockFulfillmentProvider(ctrl)
			tt.setup(catalog, provider)

			svc := NewDestinationService(catalog, provider, newTestLogger())
			check, err := svc.Validate(context.Background(), ports.ValidateDestinationRequest{
				GameID:             denom.GameID,
				DenominationID:     denom.ID,
				DestinationAccount: tt.dest,
			})

			if tt.wantCode != "" {
				assert.True(t, apperror.HasCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, check.Valid)
		})
	}
}
