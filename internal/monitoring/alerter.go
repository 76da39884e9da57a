package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate        AlertType = "pipeline_failure_rate"
	AlertStorageDegraded    AlertType = "storage_degraded"
	AlertStorageUnavailable AlertType = "storage_unavailable"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates metrics snapshots against configured thresholds and
// sends alerts via webhook. Storage health alerts are fired directly by
// the store facade hooks.
type Alerter struct {
	cfg    config.AlertingConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given alerting config.
func NewAlerter(cfg config.AlertingConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert

	if snap.Finished >= a.cfg.MinFinished && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Lead failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, snap.Finished,
			),
			Details: map[string]any{
				"fail_rate": snap.FailRate,
				"threshold": a.cfg.FailureRateThreshold,
				"failed":    snap.Failed,
				"finished":  snap.Finished,
			},
			Timestamp: time.Now().UTC(),
		})
	}

	return alerts
}

// StorageDegraded fires the primary-store-down alert. Wired into the
// facade's degraded hook; fired once per transition into degraded mode.
func (a *Alerter) StorageDegraded(err error) {
	a.SendAlerts(context.Background(), []Alert{{
		Type:      AlertStorageDegraded,
		Severity:  "high",
		Message:   "Primary store unavailable, writes redirected to local fallback",
		Details:   map[string]any{"error": err.Error()},
		Timestamp: time.Now().UTC(),
	}})
}

// StorageUnavailable fires the both-backends-down alert for a lead that
// could not be persisted anywhere.
func (a *Alerter) StorageUnavailable(leadID string, err error) {
	a.SendAlerts(context.Background(), []Alert{{
		Type:      AlertStorageUnavailable,
		Severity:  "critical",
		Message:   fmt.Sprintf("Lead %s could not be persisted to any backend", leadID),
		Details:   map[string]any{"lead_id": leadID, "error": err.Error()},
		Timestamp: time.Now().UTC(),
	}})
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
