package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m)
	assert.NotNil(t, m.Registry())
	assert.NotNil(t, m.ToolExecutionsTotal)
	assert.NotNil(t, m.AuthorizationsTotal)
	assert.NotNil(t, m.CatalogFetchesTotal)
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics()

	m.RecordToolExecution("Gmail.SendEmail", "success", 150*time.Millisecond)
	m.RecordToolExecution("Gmail.SendEmail", "authorization_required", 0)
	m.RecordAuthorization("pending")
	m.RecordCatalogFetch("ok")
	m.RecordCatalogFetch("error")
	m.RecordStaleServed()
	m.SetRegisteredTools(12)
	m.RecordWebhookEvent("auth.completed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("Gmail.SendEmail", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthorizationsTotal.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogFetchesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogStaleServedTotal))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.RegisteredTools))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookEventsTotal.WithLabelValues("auth.completed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordToolExecution("x", "success", time.Second)
		m.RecordAuthorization("completed")
		m.RecordAuthorizationWait(time.Second)
		m.RecordCatalogFetch("ok")
		m.RecordStaleServed()
		m.SetRegisteredTools(1)
		m.RecordWebhookEvent("auth.revoked")
	})
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordToolExecution("Slack.PostMessage", "success", time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "arcade_tool_executions_total"))
	assert.True(t, strings.Contains(body, "arcade_tool_execution_duration_seconds"))
}
