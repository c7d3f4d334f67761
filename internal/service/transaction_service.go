package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// postClaimTimeout bounds delivery and the recording of its verdict once a
// fulfillment claim has been won.
const postClaimTimeout = 60 * time.Second

// staleClaimAge is how long an IN_PROGRESS claim must sit untouched before an
// operator may release it. It is well past postClaimTimeout.
const staleClaimAge = 10 * time.Minute

// expiredSessionGrace is how long past its expiry a still-unpaid session is
// kept before the reconciler cancels it.
const expiredSessionGrace = 30 * time.Minute

// Sources of a status change, used in events and metrics.
const (
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
	SourceCancel    = "cancel"
)

// TransactionServiceImpl implements ports.TransactionService.
// All status and fulfillment changes go through conditional updates in the
// repository; a lost update is re-read and classified, never retried blindly.
type TransactionServiceImpl struct {
	catalog  ports.CatalogStore
	txRepo   ports.TransactionRepository
	gateway  ports.PaymentGateway
	provider ports.FulfillmentProvider
	encSvc   ports.EncryptionService
	events   ports.EventRecorder
	log      zerolog.Logger
	now      func() time.Time
}

// NewTransactionService creates a new TransactionServiceImpl.
func NewTransactionService(
	catalog ports.CatalogStore,
	txRepo ports.TransactionRepository,
	gateway ports.PaymentGateway,
	provider ports.FulfillmentProvider,
	encSvc ports.EncryptionService,
	events ports.EventRecorder,
	log zerolog.Logger,
) *TransactionServiceImpl {
	return &TransactionServiceImpl{
		catalog:  catalog,
		txRepo:   txRepo,
		gateway:  gateway,
		provider: provider,
		encSvc:   encSvc,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// Create records a PENDING purchase intent. Price and product code are
// copied from the denomination and never looked up again.
func (s *TransactionServiceImpl) Create(ctx context.Context, req ports.CreateTransactionRequest) (*domain.Transaction, error) {
	destination := strings.TrimSpace(req.DestinationAccount)
	if destination == "" {
		return nil, apperror.Validation("destination_account is required")
	}

	denom, err := s.catalog.GetActiveDenomination(ctx, req.GameID, req.DenominationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup denomination: %w", err))
	}
	if denom == nil {
		return nil, apperror.ErrNotFound("denomination")
	}
	if !denom.IsSellable() {
		s.log.Error().
			Str("denomination_id", denom.ID.String()).
			Str("game_id", denom.GameID.String()).
			Msg("denomination has no fulfillment code configured")
		return nil, apperror.ErrNotFound("denomination")
	}

	now := s.now().UTC()
	txn := &domain.Transaction{
		ID:                 uuid.New(),
		UserID:             req.UserID,
		GameID:             denom.GameID,
		DenominationID:     denom.ID,
		ProductCode:        denom.FulfillmentCode,
		DestinationAccount: destination,
		DisplayName:        req.DisplayName,
		TotalPrice:         denom.Price,
		Status:             domain.TransactionStatusPending,
		FulfillmentStatus:  domain.FulfillmentNotStarted,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.txRepo.Create(ctx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	metrics.RecordTransactionCreated()
	s.events.Record(ctx, &domain.TransactionEvent{
		TransactionID: &txn.ID,
		Kind:          domain.EventCreated,
		ToStatus:      statusPtr(domain.TransactionStatusPending),
		Detail: eventDetail(map[string]any{
			"denomination_id": denom.ID,
			"product_code":    denom.FulfillmentCode,
			"total_price":     denom.Price,
		}),
	})

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("product_code", txn.ProductCode).
		Int64("total_price", txn.TotalPrice).
		Msg("transaction created")

	return txn, nil
}

// SelectPaymentMethod records the payment method and opens a gateway session.
// Re-selecting the same method returns the stored session while it is valid.
func (s *TransactionServiceImpl) SelectPaymentMethod(ctx context.Context, id uuid.UUID, method string) (*domain.PaymentSession, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, apperror.Validation("payment_method is required")
	}

	txn, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSelectable(txn, method); err != nil {
		return nil, err
	}

	if txn.PaymentMethod != nil {
		if sess := txn.Session(); sess != nil && !sess.IsExpired(s.now()) {
			return sess, nil
		}
	}

	ok, err := s.txRepo.SetPaymentMethod(ctx, id, method)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("set payment method: %w", err))
	}
	if !ok {
		// Someone else moved the row first; report what they did.
		cur, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := checkSelectable(cur, method); err != nil {
			return nil, err
		}
		return nil, apperror.ErrInvalidState(string(cur.Status), "select a payment method for")
	}

	if txn.PaymentMethod == nil {
		s.events.Record(ctx, &domain.TransactionEvent{
			TransactionID: &txn.ID,
			Kind:          domain.EventMethodSelected,
			Detail:        eventDetail(map[string]any{"payment_method": method}),
		})
	}
	txn.PaymentMethod = &method

	session, err := s.gateway.CreatePaymentSession(ctx, txn, method)
	if err != nil {
		s.log.Warn().Err(err).Str("tx_id", id.String()).Str("method", method).Msg("payment session creation failed")
		return nil, asAdapterError("payment gateway", err)
	}

	if err := s.txRepo.SaveSession(ctx, id, session); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save payment session: %w", err))
	}

	s.events.Record(ctx, &domain.TransactionEvent{
		TransactionID: &txn.ID,
		Kind:          domain.EventSessionCreated,
		Detail: eventDetail(map[string]any{
			"payment_method": method,
			"expires_at":     session.ExpiresAt,
		}),
	})

	s.log.Info().
		Str("tx_id", id.String()).
		Str("method", method).
		Time("expires_at", session.ExpiresAt).
		Msg("payment session created")

	return session, nil
}

func checkSelectable(txn *domain.Transaction, method string) error {
	if txn.Status != domain.TransactionStatusPending {
		return apperror.ErrInvalidState(string(txn.Status), "select a payment method for")
	}
	if txn.PaymentMethod != nil && *txn.PaymentMethod != method {
		return apperror.ErrMethodAlreadySet(*txn.PaymentMethod)
	}
	return nil
}

// ApplyGatewayResult is the only place a payment verdict changes status.
// Events for a terminal transaction are reported as duplicates, not errors.
func (s *TransactionServiceImpl) ApplyGatewayResult(ctx context.Context, result ports.GatewayResult) (*ports.ApplyResult, error) {
	source := result.Source
	if source == "" {
		source = SourceWebhook
	}
	target := domain.MapGatewayStatus(result.GatewayStatus)

	txn, err := s.load(ctx, result.TransactionID)
	if err != nil {
		return nil, err
	}

	if txn.IsTerminal() {
		return s.duplicate(ctx, txn, result.GatewayStatus, source), nil
	}
	if target == domain.TransactionStatusCompleted && result.Amount != 0 && result.Amount != txn.TotalPrice {
		return nil, s.amountMismatch(ctx, txn, result.Amount, source)
	}

	blob, err := s.seal(result.ProviderResponse)
	if err != nil {
		return nil, err
	}

	// Two rounds at most: a PENDING row can lose its race to an in-flight
	// PROCESSING update and still be eligible for the terminal one.
	for round := 0; round < 2; round++ {
		if txn.IsTerminal() {
			return s.duplicate(ctx, txn, result.GatewayStatus, source), nil
		}
		if !txn.CanTransitionTo(target) {
			// PROCESSING reported again while still PROCESSING.
			return &ports.ApplyResult{TransactionID: txn.ID, Status: txn.Status}, nil
		}

		ok, err := s.txRepo.TransitionStatus(ctx, ports.TransitionParams{
			ID:                  txn.ID,
			From:                domain.SourcesFor(target),
			To:                  target,
			PaymentReference:    result.ProviderReference,
			ProviderResponseEnc: blob,
		})
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("transition status: %w", err))
		}
		if ok {
			return s.applied(ctx, txn, target, result.GatewayStatus, source), nil
		}

		if txn, err = s.load(ctx, result.TransactionID); err != nil {
			return nil, err
		}
	}

	if txn.IsTerminal() {
		return s.duplicate(ctx, txn, result.GatewayStatus, source), nil
	}
	return &ports.ApplyResult{TransactionID: txn.ID, Status: txn.Status}, nil
}

func (s *TransactionServiceImpl) applied(ctx context.Context, txn *domain.Transaction, to domain.TransactionStatus, gatewayStatus, source string) *ports.ApplyResult {
	from := txn.Status
	metrics.RecordTransition(string(from), string(to), source, txn.TotalPrice)
	s.events.Record(ctx, &domain.TransactionEvent{
		TransactionID: &txn.ID,
		Kind:          domain.EventGatewayResult,
		FromStatus:    statusPtr(from),
		ToStatus:      statusPtr(to),
		Detail:        eventDetail(map[string]any{"gateway_status": gatewayStatus, "source": source}),
	})
	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("source", source).
		Msg("gateway result applied")

	res := &ports.ApplyResult{TransactionID: txn.ID, Status: to, Applied: true}
	if to != domain.TransactionStatusCompleted {
		return res
	}

	fr, err := s.Fulfill(ctx, txn.ID)
	if err != nil {
		s.log.Error().Err(err).Str("tx_id", txn.ID.String()).Msg("fulfillment after settlement failed")
		res.FulfillmentError = err.Error()
		return res
	}
	res.Fulfillment = fr
	return res
}

func (s *TransactionServiceImpl) amountMismatch(ctx context.Context, txn *domain.Transaction, received int64, source string) error {
	s.events.Record(ctx, &domain.TransactionEvent{
		TransactionID: &txn.ID,
		Kind:          domain.EventAmountMismatch,
		FromStatus:    statusPtr(txn.Status),
		Detail: eventDetail(map[string]any{
			"expected": txn.TotalPrice,
			"received": received,
			"source":   source,
		}),
	})
	s.log.Error().
		Str("tx_id", txn.ID.String()).
		Int64("expected", txn.TotalPrice).
		Int64("received", received).
		Str("source", source).
		Msg("settlement amount does not match price, not applied")
	return apperror.ErrAmountMismatch(txn.TotalPrice, received)
}

func (s *TransactionServiceImpl) duplicate(ctx context.Context, txn *domain.Transaction, gatewayStatus, source string) *ports.ApplyResult {
	metrics.RecordDuplicateEvent(source)
	s.events.Record(ctx, &domain.TransactionEvent{
		TransactionID: &txn.ID,
		Kind:          domain.EventDuplicate,
		FromStatus:    statusPtr(txn.Status),
		Detail:        eventDetail(map[string]any{"gateway_status": gatewayStatus, "source": source}),
	})
	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("status", string(txn.Status)).
		Str("gateway_status", gatewayStatus).
		Str("source", source).
		Msg("duplicate settlement event ignored")

	return &ports.ApplyResult{TransactionID: txn.ID, Status: txn.Status, Duplicate: true}
}

// Cancel moves a PENDING transaction to CANCELLED. With req.UserID set only
// the owner may cancel; other callers see NotFound.
func (s *TransactionServiceImpl) Cancel(ctx context.Context, req ports.CancelRequest) (*domain.Transaction, error) {
	txn, err := s.load(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if req.UserID != nil && !txn.IsOwnedBy(*req.UserID) {
		return nil, apperror.ErrNotFound("transaction")
	}
	if txn.Status != domain.TransactionStatusPending {
		return nil, apperror.ErrInvalidState(string(txn.Status), "cancel")
	}

	ok, err := s.txRepo.TransitionStatus(ctx, ports.TransitionParams{
		ID:   txn.ID,
		From: []domain.TransactionStatus{domain.TransactionStatusPending},
		To:   domain.TransactionStatusCancelled,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("cancel transaction: %w", err))
	}
	if !ok {
		cur, err := s.load(ctx, req.TransactionID)
		if err != nil {
			return nil, err
		}
		return nil, apperror.ErrInvalidState(string(cur.Status), "cancel")
	}

	metrics.RecordTransition(string(domain.TransactionStatusPending), string(domain.TransactionStatusCancelled), SourceCancel, txn.TotalPrice)
	s.events.Record(ctx, &domain.TransactionEvent{
		TransactionID: &txn.ID,
		Kind:          domain.EventCancelled,
		FromStatus:    statusPtr(domain.TransactionStatusPending),
		ToStatus:      statusPtr(domain.TransactionStatusCancelled),
		Detail:        eventDetail(map[string]any{"reason": req.Reason, "by_owner": req.UserID != nil}),
	})
	s.log.Info().Str("tx_id", txn.ID.String()).Str("reason", req.Reason).Msg("transaction cancelled")

	txn.Status = domain.TransactionStatusCancelled
	txn.UpdatedAt = s.now().UTC()
	return txn, nil
}

// Fulfill delivers a COMPLETED transaction at most once. The claim on the
// fulfillment status serializes concurrent callers; a provider verdict is
// final and later calls return it without contacting the provider.
func (s *TransactionServiceImpl) Fulfill(ctx context.Context, id uuid.UUID) (*domain.FulfillmentResult, error) {
	txn, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.TransactionStatusCompleted {
		return nil, apperror.ErrInvalidState(string(txn.Status), "fulfill")
	}
	if txn.FulfillmentStatus.IsFinal() {
		return storedFulfillment(txn), nil
	}
	if !txn.FulfillmentStatus.IsClaimable() {
		return nil, apperror.ErrFulfillmentInProgress()
	}

	ok, err := s.txRepo.ClaimFulfillment(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim fulfillment: %w", err))
	}
	if !ok {
		cur, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.FulfillmentStatus.IsFinal() {
			return storedFulfillment(cur), nil
		}
		return nil, apperror.ErrFulfillmentInProgress()
	}

	// The claim is ours. From here on the caller going away must not leave
	// the row IN_PROGRESS, so the rest runs on its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postClaimTimeout)
	defer cancel()

	result, err := s.provider.Deliver(ctx, domain.DeliveryRequest{
		ProductCode:    txn.ProductCode,
		Destination:    txn.DestinationAccount,
		IdempotencyKey: txn.ID.String(),
	})
	if err != nil {
		// Hand the claim back so a retry can pick it up.
		if rerr := s.txRepo.ReleaseFulfillment(ctx, id, txn.FulfillmentStatus); rerr != nil {
			s.log.Error().Err(rerr).Str("tx_id", id.String()).Msg("failed to release fulfillment claim")
		}
		metrics.RecordFulfillment("error", decimal.Zero)
		s.log.Warn().Err(err).Str("tx_id", id.String()).Msg("delivery call failed")
		return nil, asAdapterError("fulfillment provider", err)
	}

	recorded, err := s.txRepo.RecordFulfillment(ctx, id, result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record fulfillment: %w", err))
	}
	if !recorded {
		s.log.Error().Str("tx_id", id.String()).Msg("fulfillment claim lost before verdict was recorded")
	}

	metrics.RecordFulfillment(string(result.Status), result.Cost)
	s.events.Record(ctx, &domain.TransactionEvent{
		TransactionID: &txn.ID,
		Kind:          domain.EventFulfillment,
		Detail: eventDetail(map[string]any{
			"status":  result.Status,
			"message": result.Message,
		}),
	})
	s.log.Info().
		Str("tx_id", id.String()).
		Str("fulfillment_status", string(result.Status)).
		Str("message", result.Message).
		Msg("fulfillment recorded")

	return result, nil
}

// Reconcile asks the gateway for the current verdict and applies it.
// An unpaid invoice leaves the transaction untouched.
func (s *TransactionServiceImpl) Reconcile(ctx context.Context, id uuid.UUID) (*ports.ApplyResult, error) {
	txn, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.IsTerminal() {
		return &ports.ApplyResult{TransactionID: txn.ID, Status: txn.Status}, nil
	}

	ev, err := s.gateway.CheckStatus(ctx, txn.ID.String())
	if err != nil {
		return nil, asAdapterError("payment gateway", err)
	}
	if strings.EqualFold(ev.Status, domain.GatewayStatusPending) {
		if !s.sessionLapsed(txn) {
			return &ports.ApplyResult{TransactionID: txn.ID, Status: txn.Status}, nil
		}
		// Nobody paid and nobody can any more.
		ev.Status = domain.GatewayStatusExpired
	}

	var ref *string
	if ev.Reference != "" {
		ref = &ev.Reference
	}
	return s.ApplyGatewayResult(ctx, ports.GatewayResult{
		TransactionID:     txn.ID,
		GatewayStatus:     ev.Status,
		ProviderResponse:  ev.Raw,
		ProviderReference: ref,
		Amount:            ev.Amount,
		Source:            SourceReconcile,
	})
}

func (s *TransactionServiceImpl) sessionLapsed(txn *domain.Transaction) bool {
	return txn.Status == domain.TransactionStatusPending &&
		txn.PaymentExpiresAt != nil &&
		s.now().After(txn.PaymentExpiresAt.Add(expiredSessionGrace))
}

// ReleaseStaleClaim hands back a delivery claim whose holder died before
// recording a verdict. The next Fulfill re-sends under the same provider
// ref_id, so an order that did go through is not delivered twice.
func (s *TransactionServiceImpl) ReleaseStaleClaim(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.TransactionStatusCompleted || txn.FulfillmentStatus != domain.FulfillmentInProgress {
		return nil, apperror.ErrInvalidState(string(txn.Status)+"/"+string(txn.FulfillmentStatus), "release the fulfillment claim of")
	}
	olderThan := s.now().Add(-staleClaimAge)
	if txn.UpdatedAt.After(olderThan) {
		return nil, apperror.ErrFulfillmentInProgress()
	}

	ok, err := s.txRepo.ReleaseStaleClaim(ctx, id, olderThan)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("release stale claim: %w", err))
	}
	if !ok {
		cur, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.FulfillmentStatus == domain.FulfillmentInProgress {
			return nil, apperror.ErrFulfillmentInProgress()
		}
		return nil, apperror.ErrInvalidState(string(cur.Status)+"/"+string(cur.FulfillmentStatus), "release the fulfillment claim of")
	}

	s.events.Record(ctx, &domain.TransactionEvent{
		TransactionID: &txn.ID,
		Kind:          domain.EventClaimReleased,
		Detail:        eventDetail(map[string]any{"claimed_since": txn.UpdatedAt}),
	})
	s.log.Warn().
		Str("tx_id", id.String()).
		Time("claimed_since", txn.UpdatedAt).
		Msg("stale fulfillment claim released")

	txn.FulfillmentStatus = domain.FulfillmentPending
	txn.UpdatedAt = s.now().UTC()
	return txn, nil
}

// Inspect returns a transaction with its stored gateway response decrypted.
func (s *TransactionServiceImpl) Inspect(ctx context.Context, id uuid.UUID) (*ports.TransactionDetail, error) {
	txn, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &ports.TransactionDetail{Transaction: txn}
	if txn.ProviderResponseEnc == nil || s.encSvc == nil {
		return detail, nil
	}

	plain, err := s.encSvc.Decrypt(*txn.ProviderResponseEnc)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt provider response: %w", err))
	}
	if json.Valid([]byte(plain)) {
		detail.ProviderResponse = json.RawMessage(plain)
	} else {
		quoted, _ := json.Marshal(plain)
		detail.ProviderResponse = quoted
	}
	return detail, nil
}

func (s *TransactionServiceImpl) load(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	return txn, nil
}

// seal encrypts the raw provider response for storage.
func (s *TransactionServiceImpl) seal(raw []byte) (*string, error) {
	if len(raw) == 0 || s.encSvc == nil {
		return nil, nil
	}
	enc, err := s.encSvc.Encrypt(string(raw))
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt provider response: %w", err))
	}
	return &enc, nil
}

func storedFulfillment(txn *domain.Transaction) *domain.FulfillmentResult {
	fr := &domain.FulfillmentResult{
		Status:    txn.FulfillmentStatus,
		Reference: txn.FulfillmentReference,
	}
	if txn.FulfillmentMessage != nil {
		fr.Message = *txn.FulfillmentMessage
	}
	return fr
}

// asAdapterError keeps typed errors from an adapter and wraps anything else
// as a retryable provider failure.
func asAdapterError(provider string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.ErrAdapter(provider, err)
}

func eventDetail(fields map[string]any) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(b)
}
