package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
)

func alertCfg(webhookURL string) config.AlertingConfig {
	return config.AlertingConfig{
		WebhookURL:           webhookURL,
		FailureRateThreshold: 0.2,
		MinFinished:          5,
	}
}

func TestAlerter_EvaluateFailureRate(t *testing.T) {
	a := NewAlerter(alertCfg(""))

	// Above threshold with enough finished leads.
	alerts := a.Evaluate(&MetricsSnapshot{Finished: 10, Failed: 3, FailRate: 0.3})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "30.0%")

	// Below threshold.
	assert.Empty(t, a.Evaluate(&MetricsSnapshot{Finished: 10, Failed: 1, FailRate: 0.1}))

	// Too few finished leads to be meaningful.
	assert.Empty(t, a.Evaluate(&MetricsSnapshot{Finished: 2, Failed: 2, FailRate: 1.0}))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received = append(received, alert)
	}))
	defer srv.Close()

	a := NewAlerter(alertCfg(srv.URL))
	sent := a.SendAlerts(context.Background(), a.Evaluate(&MetricsSnapshot{Finished: 10, Failed: 5, FailRate: 0.5}))

	assert.Equal(t, 1, sent)
	require.Len(t, received, 1)
	assert.Equal(t, AlertFailureRate, received[0].Type)
}

func TestAlerter_SendAlertsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAlerter(alertCfg(srv.URL))
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Severity: "high"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_NoWebhookConfigured(t *testing.T) {
	a := NewAlerter(alertCfg(""))
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}}))
}

func TestAlerter_StorageDegraded(t *testing.T) {
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received = append(received, alert)
	}))
	defer srv.Close()

	a := NewAlerter(alertCfg(srv.URL))
	a.StorageDegraded(eris.New("connection refused"))

	require.Len(t, received, 1)
	assert.Equal(t, AlertStorageDegraded, received[0].Type)
	assert.Equal(t, "connection refused", received[0].Details["error"])
}

func TestAlerter_StorageUnavailable(t *testing.T) {
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received = append(received, alert)
	}))
	defer srv.Close()

	a := NewAlerter(alertCfg(srv.URL))
	a.StorageUnavailable("acmehvac.com", eris.New("disk full"))

	require.Len(t, received, 1)
	assert.Equal(t, AlertStorageUnavailable, received[0].Type)
	assert.Equal(t, "critical", received[0].Severity)
	assert.Equal(t, "acmehvac.com", received[0].Details["lead_id"])
}
