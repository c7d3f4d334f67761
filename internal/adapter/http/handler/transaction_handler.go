package handler

import (
	"errors"
	"io"

	"topup-storefront/internal/adapter/http/dto"
	"topup-storefront/internal/adapter/http/middleware"
	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransactionHandler serves the customer-facing transaction endpoints.
type TransactionHandler struct {
	txSvc     ports.TransactionService
	statusSvc ports.StatusService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(txSvc ports.TransactionService, statusSvc ports.StatusService) *TransactionHandler {
	return &TransactionHandler{txSvc: txSvc, statusSvc: statusSvc}
}

// Create handles POST /api/v1/transactions.
func (h *TransactionHandler) Create(c *gin.Context) {
	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, err := h.txSvc.Create(c.Request.Context(), ports.CreateTransactionRequest{
		UserID:             middleware.UserID(c),
		GameID:             uuid.MustParse(req.GameID),
		DenominationID:     uuid.MustParse(req.DenominationID),
		DestinationAccount: domain.ComposeDestination(req.AccountID, req.ZoneID),
		DisplayName:        req.DisplayName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToTransactionResponse(txn))
}

// SelectPayment handles POST /api/v1/transactions/:id/payment.
func (h *TransactionHandler) SelectPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.SelectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	session, err := h.txSvc.SelectPaymentMethod(c.Request.Context(), id, req.Method)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToPaymentSessionResponse(session))
}

// GetStatus handles GET /api/v1/transactions/:id/status. With wait=true it
// holds the request until the payment settles or the poll budget runs out.
func (h *TransactionHandler) GetStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if c.Query("wait") != "true" {
		snap, err := h.statusSvc.GetStatus(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, dto.StatusResponse{StatusSnapshot: snap})
		return
	}

	res, err := h.statusSvc.Poll(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.StatusResponse{StatusSnapshot: res.Snapshot, StillPending: res.StillPending})
}

// Cancel handles POST /api/v1/transactions/:id/cancel. Only the owner may
// cancel; the route requires a verified identity.
func (h *TransactionHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	if userID == nil {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	reason, ok := bindCancelReason(c)
	if !ok {
		return
	}
	if reason == "" {
		reason = "cancelled by customer"
	}

	txn, err := h.txSvc.Cancel(c.Request.Context(), ports.CancelRequest{
		TransactionID: id,
		UserID:        userID,
		Reason:        reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToTransactionResponse(txn))
}

// pathID parses :id and answers 400 itself when it is not a UUID.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return uuid.Nil, false
	}
	return id, true
}

// bindCancelReason reads the optional cancel body. An empty body is fine.
func bindCancelReason(c *gin.Context) (string, bool) {
	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, apperror.Validation(err.Error()))
		return "", false
	}
	dto.SanitizeStruct(&req)
	return req.Reason, true
}
