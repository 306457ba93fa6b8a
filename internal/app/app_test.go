package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mouaddiguoug/feetflight/internal/config"
	"github.com/Mouaddiguoug/feetflight/internal/jobs"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:             config.EnvDevelopment,
		HTTPAddr:        "127.0.0.1:0",
		PublicURL:       "http://localhost:8080",
		FrontendURL:     "http://localhost:3000/",
		StoreDriver:     config.StoreMemory,
		JWT:             config.JWT{Secret: "test-secret-test-secret-test-secret", TTL: time.Hour},
		Payments:        config.Payments{WebhookSecret: "whsec_test"},
		MediaDir:        t.TempDir(),
		MaxUploadMB:     5,
		CORSOrigins:     "http://localhost:3000",
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		MailFrom:        "no-reply@feetflight.test",
		ExpirySchedule:  "@every 1m",
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestNewWithMemoryStore(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), logging.NewDiscard())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, []string{jobs.JobExpireSubscriptions, jobs.JobLimiterCleanup, jobs.JobEventSweep}, a.Scheduler.Jobs())
	assert.NoError(t, a.Health(context.Background()))

	rec := httptest.NewRecorder()
	a.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/categories", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), logging.NewDiscard())
	require.NoError(t, err)
	defer a.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReportsListenFailure(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.HTTPAddr = "256.0.0.1:bad"
	a, err := New(context.Background(), cfg, logging.NewDiscard())
	require.NoError(t, err)
	defer a.Close(context.Background())

	err = a.Run(context.Background())
	assert.Error(t, err)
}

func TestNewFailsOnBadSchedule(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.ExpirySchedule = "not a schedule"
	_, err := New(context.Background(), cfg, logging.NewDiscard())
	assert.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://app.test"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://app.test")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
