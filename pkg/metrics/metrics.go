// Package metrics holds the Prometheus collectors of the storefront.
// Collectors register on the default registry and are served at /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	// Transaction lifecycle
	transactionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_transactions_created_total",
		Help: "Total purchase intents created",
	})

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topup_status_transitions_total",
		Help: "Applied transaction status transitions",
	}, []string{
		"from",
		"to",
		"source", // webhook, reconcile, cancel
	})

	duplicateEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topup_duplicate_events_total",
		Help: "Settlement events received for an already terminal transaction",
	}, []string{"source"})

	settledRevenue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_settled_revenue_idr_total",
		Help: "Sum of total_price of transactions that reached COMPLETED, in IDR",
	})

	// Webhook authentication
	webhookAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_webhook_auth_failures_total",
		Help: "Gateway notifications rejected by signature verification",
	})

	// Fulfillment
	fulfillmentAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topup_fulfillment_attempts_total",
		Help: "Delivery calls to the top-up provider by outcome",
	}, []string{
		"outcome", // DELIVERED, PENDING, FAILED, error
	})

	fulfillmentCost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_fulfillment_cost_idr_total",
		Help: "Provider cost of delivered items, in IDR",
	})

	// External calls
	externalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topup_external_request_duration_seconds",
		Help:    "Latency of calls to the payment gateway and top-up provider",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"provider",  // doku, digiflazz
		"operation", // create_session, check_status, deliver, inquiry
		"outcome",   // ok, error
	})

	// Reconciliation
	reconcileChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topup_reconcile_checks_total",
		Help: "Gateway status checks made by the reconciler",
	}, []string{"outcome"}) // applied, unchanged, duplicate, error

	// HTTP
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordTransactionCreated counts a new purchase intent.
func RecordTransactionCreated() {
	transactionsCreated.Inc()
}

// RecordTransition counts an applied status change. Reaching COMPLETED
// also adds the frozen price to settled revenue.
func RecordTransition(from, to, source string, amount int64) {
	statusTransitions.WithLabelValues(from, to, source).Inc()
	if to == "COMPLETED" {
		settledRevenue.Add(float64(amount))
	}
}

// RecordDuplicateEvent counts a no-op settlement event.
func RecordDuplicateEvent(source string) {
	duplicateEvents.WithLabelValues(source).Inc()
}

// RecordWebhookAuthFailure counts a rejected gateway notification.
func RecordWebhookAuthFailure() {
	webhookAuthFailures.Inc()
}

// RecordFulfillment counts a delivery attempt. cost is only added for delivered items.
func RecordFulfillment(outcome string, cost decimal.Decimal) {
	fulfillmentAttempts.WithLabelValues(outcome).Inc()
	if outcome == "DELIVERED" {
		f, _ := cost.Float64()
		fulfillmentCost.Add(f)
	}
}

// ObserveExternalCall records the latency of one provider call.
func ObserveExternalCall(provider, operation string, err error, seconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	externalDuration.WithLabelValues(provider, operation, outcome).Observe(seconds)
}

// RecordReconcileCheck counts one reconciler status check.
func RecordReconcileCheck(outcome string) {
	reconcileChecks.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, seconds float64) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}
