package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.LoginStarted("github")
	m.LoginStarted("github")
	m.CallbackFinished("github", "success", "session_established")
	m.CallbackFinished("github", "invalid_state", "idle")
	m.ObserveHTTP(http.MethodGet, "/health", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.loginsTotal.WithLabelValues("github")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacksTotal.WithLabelValues("github", "success", "session_established")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacksTotal.WithLabelValues("github", "invalid_state", "idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/health", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LoginStarted("github")
		m.CallbackFinished("github", "success", "linked")
		m.ObserveProvider("github", "exchange", time.Second)
		m.ObserveHTTP("GET", "/", 200, time.Second)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.LoginStarted("keycloak")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auth_logins_started_total{provider="keycloak"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
