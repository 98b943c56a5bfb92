package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestMetricsEndpointExposesCollectors(t *testing.T) {
	MoveAttemptsTotal.WithLabelValues("uid", "ok").Inc()

	rec := httptest.NewRecorder()
	Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "mailtriage_move_attempts_total"))
}

func TestCounterVecLabels(t *testing.T) {
	MessagesTotal.Reset()
	MessagesTotal.WithLabelValues("replied").Inc()
	MessagesTotal.WithLabelValues("replied").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(MessagesTotal.WithLabelValues("replied")))
	assert.Equal(t, 0.0, testutil.ToFloat64(MessagesTotal.WithLabelValues("escalated")))
}
