package digiflazz

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"topup-storefront/internal/core/domain"
	"topup-storefront/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refID = "7f0c3c1e-5b7a-4a7e-9d55-0a4a1f0e2b11"

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func newTestClient(baseURL string, httpClient HTTPClient) *Client {
	return NewClient(Config{
		BaseURL:  baseURL,
		Username: "storeuser",
		APIKey:   "dev-key",
		Testing:  true,
	}, httpClient, zerolog.New(io.Discard))
}

func TestSign(t *testing.T) {
	// md5("storeuserdev-keyref-1")
	assert.Equal(t, "9e8e54c30b079d002ed97de5c5f258ca", Sign("storeuser", "dev-key", "ref-1"))
	assert.NotEqual(t, Sign("storeuser", "dev-key", "ref-1"), Sign("storeuser", "dev-key", "ref-2"))
	assert.Equal(t, "5f4dcc3b5aa765d61d8327deb882cf99", Sign("pass", "", "word"))
}

func TestClient_Deliver(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
		response   string
		wantStatus domain.FulfillmentStatus
		wantSN     string
		wantCost   string
	}{
		{
			name:       "success",
			httpStatus: http.StatusOK,
			response:   `{"data":{"ref_id":"` + refID + `","status":"Sukses","rc":"00","message":"Transaksi Sukses","sn":"SN-8891","price":37500}}`,
			wantStatus: domain.FulfillmentDelivered,
			wantSN:     "SN-8891",
			wantCost:   "37500",
		},
		{
			name:       "pending",
			httpStatus: http.StatusOK,
			response:   `{"data":{"ref_id":"` + refID + `","status":"Pending","rc":"03","message":"Transaksi Pending","sn":"","price":37500}}`,
			wantStatus: domain.FulfillmentPending,
			wantCost:   "37500",
		},
		{
			name:       "failed with 4xx",
			httpStatus: http.StatusBadRequest,
			response:   `{"data":{"ref_id":"` + refID + `","status":"Gagal","rc":"44","message":"Nomor tujuan salah","price":0}}`,
			wantStatus: domain.FulfillmentFailed,
			wantCost:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/transaction", r.URL.Path)

				var req transactionRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Empty(t, req.Commands)
				assert.Equal(t, "storeuser", req.Username)
				assert.Equal(t, "ML86", req.BuyerSKUCode)
				assert.Equal(t, "123456782001", req.CustomerNo)
				assert.Equal(t, refID, req.RefID)
				assert.Equal(t, Sign("storeuser", "dev-key", refID), req.Sign)
				assert.True(t, req.Testing)

				w.WriteHeader(tt.httpStatus)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			c := newTestClient(server.URL, server.Client())
			res, err := c.Deliver(t.Context(), domain.DeliveryRequest{
				ProductCode:    "ML86",
				Destination:    "12345678|2001",
				IdempotencyKey: refID,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.wantSN == "" {
				assert.Nil(t, res.Reference)
			} else {
				require.NotNil(t, res.Reference)
				assert.Equal(t, tt.wantSN, *res.Reference)
			}
			assert.True(t, decimal.RequireFromString(tt.wantCost).Equal(res.Cost))
		})
	}
}

func TestClient_Deliver_AdapterErrors(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
		response   string
	}{
		{"server error", http.StatusServiceUnavailable, `{}`},
		{"no status", http.StatusOK, `{"data":{}}`},
		{"not json", http.StatusOK, `upstream timeout`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.httpStatus)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			c := newTestClient(server.URL, server.Client())
			_, err := c.Deliver(t.Context(), domain.DeliveryRequest{ProductCode: "ML86", Destination: "1", IdempotencyKey: refID})

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperror.CodeAdapter, appErr.Code)
			assert.True(t, appErr.Retryable)
		})
	}
}

func TestClient_Deliver_TransportError(t *testing.T) {
	c := newTestClient("https://api.digiflazz.com", &mockHTTPClient{
		doFunc: func(*http.Request) (*http.Response, error) {
			return nil, errors.New("i/o timeout")
		},
	})

	_, err := c.Deliver(t.Context(), domain.DeliveryRequest{ProductCode: "ML86", Destination: "1", IdempotencyKey: refID})
	assert.True(t, apperror.HasCode(err, apperror.CodeAdapter))
}

func TestClient_ValidateDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transactionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "inq-pasca", req.Commands)
		assert.Equal(t, "98765", req.CustomerNo)
		assert.Equal(t, Sign("storeuser", "dev-key", req.RefID), req.Sign)

		if req.BuyerSKUCode == "ML86" {
			_, _ = w.Write([]byte(`{"data":{"status":"Sukses","customer_name":" PlayerOne ","message":"Inquiry Sukses"}}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"data":{"status":"Gagal","message":"Nomor tujuan salah"}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, server.Client())

	check, err := c.ValidateDestination(t.Context(), "ML86", "98765")
	require.NoError(t, err)
	assert.True(t, check.Valid)
	require.NotNil(t, check.DisplayName)
	assert.Equal(t, "PlayerOne", *check.DisplayName)

	check, err = c.ValidateDestination(t.Context(), "FF100", "98765")
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Nil(t, check.DisplayName)
	assert.Equal(t, "Nomor tujuan salah", check.Message)
}
