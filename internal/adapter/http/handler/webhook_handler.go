package handler

import (
	"context"
	"time"

	"topup-storefront/internal/adapter/gateway/doku"
	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/internal/service"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/metrics"
	"topup-storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DOKU retries an unacknowledged notification for a few days.
const notificationLedgerTTL = 72 * time.Hour

// WebhookHandler receives payment notifications from the gateway.
type WebhookHandler struct {
	gateway ports.PaymentGateway
	txSvc   ports.TransactionService
	ledger  ports.NotificationLedger // optional
	events  ports.EventRecorder
	log     zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. ledger may be nil.
func NewWebhookHandler(
	gateway ports.PaymentGateway,
	txSvc ports.TransactionService,
	ledger ports.NotificationLedger,
	events ports.EventRecorder,
	log zerolog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		gateway: gateway,
		txSvc:   txSvc,
		ledger:  ledger,
		events:  events,
		log:     log,
	}
}

// DokuNotification handles POST /api/v1/payments/doku/notification.
// The signature is checked before anything in the body is looked at.
func (h *WebhookHandler) DokuNotification(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := c.GetRawData()
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	ev, err := h.gateway.VerifyInboundNotification(c.Request.Header, raw)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeAuthFailure) {
			h.rejected(c)
		}
		response.Error(c, err)
		return
	}

	log := h.log.With().
		Str("request_id", ev.RequestID).
		Str("invoice_number", ev.InvoiceNumber).
		Str("gateway_status", ev.Status).
		Logger()

	if h.ledger != nil {
		seen, err := h.ledger.Seen(ctx, ev.RequestID)
		if err != nil {
			log.Warn().Err(err).Msg("notification ledger unavailable")
		} else if seen {
			log.Info().Msg("notification already processed")
			response.Ack(c)
			return
		}
	}

	txID, err := ev.TransactionID()
	if err != nil {
		log.Warn().Msg("notification for an unknown invoice format")
		response.Error(c, apperror.ErrNotFound("transaction"))
		return
	}

	var ref *string
	if ev.Reference != "" {
		ref = &ev.Reference
	}
	res, err := h.txSvc.ApplyGatewayResult(ctx, ports.GatewayResult{
		TransactionID:     txID,
		GatewayStatus:     ev.Status,
		ProviderResponse:  ev.Raw,
		ProviderReference: ref,
		Amount:            ev.Amount,
		Source:            service.SourceWebhook,
	})
	if apperror.HasCode(err, apperror.CodeAmountMismatch) {
		// Recorded for review; a redelivery would carry the same amount.
		log.Error().Err(err).Int64("amount", ev.Amount).Msg("notification amount rejected")
		h.remember(ctx, ev.RequestID, log)
		response.Ack(c)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to apply notification")
		response.Error(c, err)
		return
	}

	h.remember(ctx, ev.RequestID, log)

	log.Info().
		Str("status", string(res.Status)).
		Bool("applied", res.Applied).
		Bool("duplicate", res.Duplicate).
		Msg("notification processed")
	response.Ack(c)
}

func (h *WebhookHandler) remember(ctx context.Context, requestID string, log zerolog.Logger) {
	if h.ledger == nil {
		return
	}
	if err := h.ledger.Remember(ctx, requestID, notificationLedgerTTL); err != nil {
		log.Warn().Err(err).Msg("failed to remember notification")
	}
}

func (h *WebhookHandler) rejected(c *gin.Context) {
	clientID := c.GetHeader(doku.HeaderClientID)
	requestID := c.GetHeader(doku.HeaderRequestID)

	metrics.RecordWebhookAuthFailure()
	h.log.Warn().
		Str("event", "webhook_auth_failure").
		Str("client_id", clientID).
		Str("request_id", requestID).
		Str("client_ip", c.ClientIP()).
		Msg("gateway notification rejected")

	h.events.Record(c.Request.Context(), &domain.TransactionEvent{
		Kind: domain.EventAuthFailure,
		Detail: eventDetail(map[string]string{
			"client_id":  clientID,
			"request_id": requestID,
			"client_ip":  c.ClientIP(),
		}),
	})
}
