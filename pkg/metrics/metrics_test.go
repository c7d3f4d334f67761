package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransition_CompletedAddsRevenue(t *testing.T) {
	transitions := statusTransitions.WithLabelValues("PENDING", "COMPLETED", "webhook")
	beforeCount := testutil.ToFloat64(transitions)
	beforeRevenue := testutil.ToFloat64(settledRevenue)

	RecordTransition("PENDING", "COMPLETED", "webhook", 39000)

	assert.Equal(t, beforeCount+1, testutil.ToFloat64(transitions))
	assert.Equal(t, beforeRevenue+39000, testutil.ToFloat64(settledRevenue))
}

func TestRecordTransition_OtherStatusesAddNoRevenue(t *testing.T) {
	before := testutil.ToFloat64(settledRevenue)

	RecordTransition("PENDING", "CANCELLED", "cancel", 20000)

	assert.Equal(t, before, testutil.ToFloat64(settledRevenue))
}

func TestRecordDuplicateEvent(t *testing.T) {
	c := duplicateEvents.WithLabelValues("webhook")
	before := testutil.ToFloat64(c)

	RecordDuplicateEvent("webhook")
	RecordDuplicateEvent("webhook")

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestRecordWebhookAuthFailure(t *testing.T) {
	before := testutil.ToFloat64(webhookAuthFailures)
	RecordWebhookAuthFailure()
	assert.Equal(t, before+1, testutil.ToFloat64(webhookAuthFailures))
}

func TestRecordFulfillment(t *testing.T) {
	delivered := fulfillmentAttempts.WithLabelValues("DELIVERED")
	failed := fulfillmentAttempts.WithLabelValues("FAILED")
	beforeDelivered := testutil.ToFloat64(delivered)
	beforeFailed := testutil.ToFloat64(failed)
	beforeCost := testutil.ToFloat64(fulfillmentCost)

	RecordFulfillment("DELIVERED", decimal.NewFromInt(37500))
	RecordFulfillment("FAILED", decimal.NewFromInt(99999))

	assert.Equal(t, beforeDelivered+1, testutil.ToFloat64(delivered))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
	assert.Equal(t, beforeCost+37500, testutil.ToFloat64(fulfillmentCost))
}

func TestObserveExternalCall(t *testing.T) {
	before := testutil.CollectAndCount(externalDuration)

	ObserveExternalCall("doku", "create_session", nil, 0.2)
	ObserveExternalCall("doku", "create_session", errors.New("timeout"), 15)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(externalDuration), before)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(externalDuration), 2)
}

func TestRecordReconcileCheck(t *testing.T) {
	c := reconcileChecks.WithLabelValues("unchanged")
	before := testutil.ToFloat64(c)
	RecordReconcileCheck("unchanged")
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestObserveHTTPRequest(t *testing.T) {
	c := httpRequests.WithLabelValues("GET", "/health", "200")
	before := testutil.ToFloat64(c)
	ObserveHTTPRequest("GET", "/health", 200, 0.001)
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
