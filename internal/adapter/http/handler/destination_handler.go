package handler

import (
	"topup-storefront/internal/adapter/http/dto"
	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DestinationHandler serves the advisory account lookup.
type DestinationHandler struct {
	svc ports.DestinationService
}

func NewDestinationHandler(svc ports.DestinationService) *DestinationHandler {
	return &DestinationHandler{svc: svc}
}

// Validate handles POST /api/v1/destinations/validate.
func (h *DestinationHandler) Validate(c *gin.Context) {
	var req dto.ValidateDestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	check, err := h.svc.Validate(c.Request.Context(), ports.ValidateDestinationRequest{
		GameID:             uuid.MustParse(req.GameID),
		DenominationID:     uuid.MustParse(req.DenominationID),
		DestinationAccount: domain.ComposeDestination(req.AccountID, req.ZoneID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, check)
}
