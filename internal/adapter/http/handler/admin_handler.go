package handler

import (
	"encoding/json"
	"fmt"

	"topup-storefront/internal/adapter/http/dto"
	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves operator actions behind the admin key.
type AdminHandler struct {
	txSvc     ports.TransactionService
	eventRepo ports.EventRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(txSvc ports.TransactionService, eventRepo ports.EventRepository) *AdminHandler {
	return &AdminHandler{txSvc: txSvc, eventRepo: eventRepo}
}

// Cancel handles POST /api/v1/admin/transactions/:id/cancel.
func (h *AdminHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reason, ok := bindCancelReason(c)
	if !ok {
		return
	}
	if reason == "" {
		reason = "cancelled by operator"
	}

	txn, err := h.txSvc.Cancel(c.Request.Context(), ports.CancelRequest{TransactionID: id, Reason: reason})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToTransactionResponse(txn))
}

// Fulfill handles POST /api/v1/admin/transactions/:id/fulfill. It retries a
// delivery the provider left pending; a final verdict is returned as is.
func (h *AdminHandler) Fulfill(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	res, err := h.txSvc.Fulfill(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Reconcile handles POST /api/v1/admin/transactions/:id/reconcile.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	res, err := h.txSvc.Reconcile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Release handles POST /api/v1/admin/transactions/:id/release. It frees a
// delivery claim left IN_PROGRESS by a worker that died mid-delivery.
func (h *AdminHandler) Release(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	txn, err := h.txSvc.ReleaseStaleClaim(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToTransactionResponse(txn))
}

// Inspect handles GET /api/v1/admin/transactions/:id.
func (h *AdminHandler) Inspect(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.txSvc.Inspect(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Events handles GET /api/v1/admin/transactions/:id/events.
func (h *AdminHandler) Events(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	events, err := h.eventRepo.ListByTransaction(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(fmt.Errorf("list events: %w", err)))
		return
	}
	response.OK(c, events)
}

func eventDetail(fields map[string]string) string {
	b, _ := json.Marshal(fields)
	return string(b)
}
