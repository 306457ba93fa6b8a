package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHTTPRequest(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("get", "/albums/{id}", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("GET", "/albums/{id}", 200, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/albums/{id}", "200")))
}

func TestObserveQueryCountsErrors(t *testing.T) {
	m := New()
	m.ObserveQuery("write", time.Millisecond, nil)
	m.ObserveQuery("write", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.graphErrors.WithLabelValues("write")))
}

func TestWalletAndWebhookCounters(t *testing.T) {
	m := New()
	m.RecordWalletCredit("purchase", 1500)
	m.RecordWalletCredit("purchase", 500)
	m.RecordWebhookEvent("", "ignored")

	assert.Equal(t, 2000.0, testutil.ToFloat64(m.walletCredits.WithLabelValues("purchase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("unknown", "ignored")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordJobRun("expire_subscriptions", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "feetflight_jobs_runs_total")
}
