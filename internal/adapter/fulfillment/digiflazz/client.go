// Package digiflazz implements ports.FulfillmentProvider against the
// Digiflazz buyer API.
package digiflazz

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"topup-storefront/internal/core/domain"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	providerName    = "digiflazz"
	transactionPath = "/v1/transaction"
	inquiryCommand  = "inq-pasca"
)

// Provider status vocabulary.
const (
	StatusSuccess = "Sukses"
	StatusPending = "Pending"
	StatusFailed  = "Gagal"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the buyer credentials.
type Config struct {
	BaseURL  string
	Username string
	APIKey   string
	Testing  bool // routes orders to the provider's sandbox products
}

// Client is the Digiflazz adapter.
type Client struct {
	cfg        Config
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewClient creates a new Digiflazz client.
func NewClient(cfg Config, httpClient HTTPClient, log zerolog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        log.With().Str("provider", providerName).Logger(),
	}
}

type transactionRequest struct {
	Commands     string `json:"commands,omitempty"`
	Username     string `json:"username"`
	BuyerSKUCode string `json:"buyer_sku_code"`
	CustomerNo   string `json:"customer_no"`
	RefID        string `json:"ref_id"`
	Sign         string `json:"sign"`
	Testing      bool   `json:"testing,omitempty"`
}

type transactionResponse struct {
	Data struct {
		RefID        string          `json:"ref_id"`
		CustomerNo   string          `json:"customer_no"`
		CustomerName string          `json:"customer_name"`
		BuyerSKUCode string          `json:"buyer_sku_code"`
		Message      string          `json:"message"`
		Status       string          `json:"status"`
		RC           string          `json:"rc"`
		SN           string          `json:"sn"`
		Price        decimal.Decimal `json:"price"`
	} `json:"data"`
}

// Sign returns md5(username + apiKey + refID) in lowercase hex.
func Sign(username, apiKey, refID string) string {
	sum := md5.Sum([]byte(username + apiKey + refID))
	return hex.EncodeToString(sum[:])
}

// Deliver places the top-up order. The transaction id is the ref_id, so a
// repeated call returns the status of the original order.
func (c *Client) Deliver(ctx context.Context, req domain.DeliveryRequest) (*domain.FulfillmentResult, error) {
	resp, err := c.post(ctx, "deliver", transactionRequest{
		Username:     c.cfg.Username,
		BuyerSKUCode: req.ProductCode,
		CustomerNo:   domain.CustomerNumber(req.Destination),
		RefID:        req.IdempotencyKey,
		Sign:         Sign(c.cfg.Username, c.cfg.APIKey, req.IdempotencyKey),
		Testing:      c.cfg.Testing,
	})
	if err != nil {
		return nil, err
	}

	d := resp.Data
	result := &domain.FulfillmentResult{
		Status:  mapStatus(d.Status),
		Message: d.Message,
		Cost:    d.Price,
	}
	if d.SN != "" {
		sn := d.SN
		result.Reference = &sn
	}

	c.log.Info().
		Str("ref_id", req.IdempotencyKey).
		Str("sku", req.ProductCode).
		Str("status", d.Status).
		Str("rc", d.RC).
		Msg("delivery response")

	return result, nil
}

// ValidateDestination runs an account inquiry. The answer is advisory.
func (c *Client) ValidateDestination(ctx context.Context, productCode, destination string) (*domain.DestinationCheck, error) {
	refID := "inq-" + uuid.NewString()
	resp, err := c.post(ctx, "inquiry", transactionRequest{
		Commands:     inquiryCommand,
		Username:     c.cfg.Username,
		BuyerSKUCode: productCode,
		CustomerNo:   domain.CustomerNumber(destination),
		RefID:        refID,
		Sign:         Sign(c.cfg.Username, c.cfg.APIKey, refID),
		Testing:      c.cfg.Testing,
	})
	if err != nil {
		return nil, err
	}

	check := &domain.DestinationCheck{
		Valid:   resp.Data.Status == StatusSuccess,
		Message: resp.Data.Message,
	}
	if name := strings.TrimSpace(resp.Data.CustomerName); name != "" {
		check.DisplayName = &name
	}
	return check, nil
}

func mapStatus(s string) domain.FulfillmentStatus {
	switch {
	case strings.EqualFold(s, StatusSuccess):
		return domain.FulfillmentDelivered
	case strings.EqualFold(s, StatusFailed):
		return domain.FulfillmentFailed
	default:
		// Unknown answers are re-asked later with the same ref_id.
		return domain.FulfillmentPending
	}
}

// post sends one request. Digiflazz answers business failures with a 4xx and
// a normal body, so any decodable status is returned as a verdict.
func (c *Client) post(ctx context.Context, op string, payload transactionRequest) (out *transactionResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveExternalCall(providerName, op, err, time.Since(start).Seconds())
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal %s request: %w", op, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+transactionPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("build %s request: %w", op, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.ErrAdapter(providerName, fmt.Errorf("%s: %w", op, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.ErrAdapter(providerName, fmt.Errorf("read %s response: %w", op, err))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, apperror.ErrAdapter(providerName, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode))
	}

	var decoded transactionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Data.Status == "" {
		c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("undecodable provider response")
		return nil, apperror.ErrAdapter(providerName, fmt.Errorf("%s: no status in response (http %d)", op, resp.StatusCode))
	}
	return &decoded, nil
}
