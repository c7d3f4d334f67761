// Package doku implements ports.PaymentGateway against DOKU Checkout.
package doku

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	providerName = "doku"

	checkoutPath    = "/checkout/v1/payment"
	statusPathFmt   = "/orders/v1/status/%s"
	timestampLayout = "2006-01-02T15:04:05Z"
	expiryLayout    = "20060102150405"

	// Header names shared by requests and notifications.
	HeaderClientID  = "Client-Id"
	HeaderRequestID = "Request-Id"
	HeaderTimestamp = "Request-Timestamp"
	HeaderSignature = "Signature"
	HeaderDigest    = "Digest"

	maxErrorBody = 512
)

// DOKU reports expiry in Western Indonesian Time without an offset.
var wib = time.FixedZone("WIB", 7*60*60)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the merchant credentials and checkout options.
type Config struct {
	BaseURL          string
	ClientID         string
	SecretKey        string
	NotificationPath string // request target DOKU signs notifications with
	CallbackURL      string // browser redirect after payment
	PaymentDueMins   int
	MaxClockSkew     time.Duration // 0 disables the timestamp check
}

// Client is the DOKU Checkout adapter. It never mutates transactions.
type Client struct {
	cfg        Config
	codec      ports.SignatureCodec
	httpClient HTTPClient
	log        zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// NewClient creates a new DOKU client.
func NewClient(cfg Config, codec ports.SignatureCodec, httpClient HTTPClient, log zerolog.Logger) *Client {
	if cfg.PaymentDueMins <= 0 {
		cfg.PaymentDueMins = 60
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		codec:      codec,
		httpClient: httpClient,
		log:        log.With().Str("provider", providerName).Logger(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

type checkoutRequest struct {
	Order    checkoutOrder     `json:"order"`
	Payment  checkoutPayment   `json:"payment"`
	Customer *checkoutCustomer `json:"customer,omitempty"`
}

type checkoutOrder struct {
	Amount        int64  `json:"amount"`
	InvoiceNumber string `json:"invoice_number"`
	Currency      string `json:"currency"`
	CallbackURL   string `json:"callback_url,omitempty"`
}

type checkoutPayment struct {
	PaymentDueDate     int      `json:"payment_due_date"`
	PaymentMethodTypes []string `json:"payment_method_types"`
}

type checkoutCustomer struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type checkoutResponse struct {
	Message  []string `json:"message"`
	Response struct {
		Payment struct {
			TokenID     string `json:"token_id"`
			URL         string `json:"url"`
			ExpiredDate string `json:"expired_date"`
		} `json:"payment"`
	} `json:"response"`
}

// orderStatus is the body of both a payment notification and a status inquiry.
type orderStatus struct {
	Order struct {
		InvoiceNumber string `json:"invoice_number"`
		Amount        int64  `json:"amount"`
	} `json:"order"`
	Transaction struct {
		Status            string `json:"status"`
		Date              string `json:"date"`
		OriginalRequestID string `json:"original_request_id"`
	} `json:"transaction"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

// CreatePaymentSession opens a hosted checkout for a PENDING transaction.
func (c *Client) CreatePaymentSession(ctx context.Context, tx *domain.Transaction, method string) (*domain.PaymentSession, error) {
	if tx.Status != domain.TransactionStatusPending {
		return nil, apperror.ErrInvalidState(string(tx.Status), "create a payment session for")
	}
	if tx.PaymentMethod != nil && *tx.PaymentMethod != method {
		return nil, apperror.ErrMethodAlreadySet(*tx.PaymentMethod)
	}

	req := checkoutRequest{
		Order: checkoutOrder{
			Amount:        tx.TotalPrice,
			InvoiceNumber: tx.ID.String(),
			Currency:      "IDR",
			CallbackURL:   c.cfg.CallbackURL,
		},
		Payment: checkoutPayment{
			PaymentDueDate:     c.cfg.PaymentDueMins,
			PaymentMethodTypes: []string{method},
		},
	}
	if tx.UserID != nil || tx.DisplayName != nil {
		req.Customer = &checkoutCustomer{}
		if tx.UserID != nil {
			req.Customer.ID = *tx.UserID
		}
		if tx.DisplayName != nil {
			req.Customer.Name = *tx.DisplayName
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal checkout request: %w", err))
	}

	var resp checkoutResponse
	if err := c.do(ctx, "create_session", http.MethodPost, checkoutPath, body, &resp); err != nil {
		return nil, err
	}

	p := resp.Response.Payment
	if p.TokenID == "" || p.URL == "" {
		return nil, apperror.ErrAdapter(providerName, fmt.Errorf("checkout response missing token or url: %v", resp.Message))
	}

	session := &domain.PaymentSession{
		Token:       p.TokenID,
		RedirectURL: p.URL,
		ExpiresAt:   c.parseExpiry(p.ExpiredDate),
	}

	c.log.Info().
		Str("invoice_number", tx.ID.String()).
		Str("method", method).
		Time("expires_at", session.ExpiresAt).
		Msg("checkout session created")

	return session, nil
}

// VerifyInboundNotification authenticates a notification and parses it.
// Nothing in the body is trusted before the signature checks out.
func (c *Client) VerifyInboundNotification(headers http.Header, rawBody []byte) (*domain.GatewayEvent, error) {
	components := ports.SignatureComponents{
		ClientID:      headers.Get(HeaderClientID),
		RequestID:     headers.Get(HeaderRequestID),
		Timestamp:     headers.Get(HeaderTimestamp),
		RequestTarget: c.cfg.NotificationPath,
		Body:          rawBody,
	}

	if components.ClientID != c.cfg.ClientID {
		return nil, apperror.ErrAuthenticationFailure()
	}
	if !c.codec.Verify(headers.Get(HeaderSignature), components, c.cfg.SecretKey) {
		return nil, apperror.ErrAuthenticationFailure()
	}
	if c.cfg.MaxClockSkew > 0 && !c.withinSkew(components.Timestamp) {
		return nil, apperror.ErrAuthenticationFailure()
	}

	var body orderStatus
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, apperror.Validation("malformed notification body")
	}
	if body.Order.InvoiceNumber == "" || body.Transaction.Status == "" {
		return nil, apperror.Validation("notification is missing invoice number or status")
	}

	ev := toEvent(&body, rawBody)
	ev.RequestID = components.RequestID
	return ev, nil
}

// CheckStatus asks DOKU for the current state of an invoice. An invoice DOKU
// does not know about is reported as PENDING.
func (c *Client) CheckStatus(ctx context.Context, invoiceNumber string) (*domain.GatewayEvent, error) {
	raw, err := c.doRaw(ctx, "check_status", http.MethodGet, fmt.Sprintf(statusPathFmt, invoiceNumber), nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return &domain.GatewayEvent{InvoiceNumber: invoiceNumber, Status: domain.GatewayStatusPending}, nil
		}
		return nil, err
	}
	var body orderStatus
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperror.ErrAdapter(providerName, fmt.Errorf("decode status response: %w", err))
	}
	if body.Order.InvoiceNumber == "" {
		body.Order.InvoiceNumber = invoiceNumber
	}
	return toEvent(&body, raw), nil
}

func toEvent(body *orderStatus, raw []byte) *domain.GatewayEvent {
	return &domain.GatewayEvent{
		InvoiceNumber: body.Order.InvoiceNumber,
		Status:        strings.ToUpper(body.Transaction.Status),
		Amount:        body.Order.Amount,
		Channel:       body.Channel.ID,
		Reference:     body.Transaction.OriginalRequestID,
		Raw:           raw,
	}
}

func (c *Client) withinSkew(ts string) bool {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return false
	}
	d := c.now().Sub(t)
	if d < 0 {
		d = -d
	}
	return d <= c.cfg.MaxClockSkew
}

func (c *Client) parseExpiry(s string) time.Time {
	if t, err := time.ParseInLocation(expiryLayout, s, wib); err == nil {
		return t.UTC()
	}
	return c.now().Add(time.Duration(c.cfg.PaymentDueMins) * time.Minute).UTC()
}

func (c *Client) do(ctx context.Context, op, method, target string, body []byte, out any) error {
	raw, err := c.doRaw(ctx, op, method, target, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperror.ErrAdapter(providerName, fmt.Errorf("decode %s response: %w", op, err))
	}
	return nil
}

// doRaw sends a signed request and returns the body of a 2xx response.
func (c *Client) doRaw(ctx context.Context, op, method, target string, body []byte) (raw []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveExternalCall(providerName, op, err, time.Since(start).Seconds())
	}()

	components := ports.SignatureComponents{
		ClientID:      c.cfg.ClientID,
		RequestID:     c.newID(),
		Timestamp:     c.now().UTC().Format(timestampLayout),
		RequestTarget: target,
		Body:          body,
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+target, reader)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("build %s request: %w", op, err))
	}
	req.Header.Set(HeaderClientID, components.ClientID)
	req.Header.Set(HeaderRequestID, components.RequestID)
	req.Header.Set(HeaderTimestamp, components.Timestamp)
	req.Header.Set(HeaderSignature, c.codec.Sign(components, c.cfg.SecretKey))
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderDigest, c.codec.Digest(body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.ErrAdapter(providerName, fmt.Errorf("%s: %w", op, err))
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.ErrAdapter(providerName, fmt.Errorf("read %s response: %w", op, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("request_id", components.RequestID).
			Msg("unexpected gateway response")
		return nil, apperror.ErrAdapter(providerName, &statusError{code: resp.StatusCode, body: truncate(raw)})
	}
	return raw, nil
}

// statusError is a non-2xx answer from DOKU.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody])
	}
	return string(b)
}
