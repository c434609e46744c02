package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/config"
)

func monitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold: 0.25,
		QualityFloor:         60.0,
		LookbackWindowHours:  24,
	}
}

func healthySnapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		Total:         20,
		Valid:         19,
		Invalid:       1,
		FailRate:      0.05,
		AvgScore:      92.0,
		AvgQuality:    88.0,
		LookbackHours: 24,
		CollectedAt:   time.Now().UTC(),
	}
}

func TestEvaluateHealthy(t *testing.T) {
	a := NewAlerter(monitoringConfig())

	alerts := a.Evaluate(healthySnapshot())
	assert.Empty(t, alerts)
}

func TestEvaluateFailureRate(t *testing.T) {
	a := NewAlerter(monitoringConfig())

	snap := healthySnapshot()
	snap.Invalid = 8
	snap.Valid = 12
	snap.FailRate = 0.4

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "8 invalid / 20 processed")
	assert.Equal(t, 8, alerts[0].Details["invalid"])
}

func TestEvaluateQualityDrift(t *testing.T) {
	a := NewAlerter(monitoringConfig())

	snap := healthySnapshot()
	snap.AvgQuality = 45.0

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertQualityDrift, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "45.0")
	assert.Contains(t, alerts[0].Message, "60.0")
}

func TestEvaluateBothAlerts(t *testing.T) {
	a := NewAlerter(monitoringConfig())

	snap := healthySnapshot()
	snap.FailRate = 0.5
	snap.AvgQuality = 30.0

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 2)
}

func TestEvaluateSmallWindowSuppressed(t *testing.T) {
	a := NewAlerter(monitoringConfig())

	snap := healthySnapshot()
	snap.Total = 3
	snap.FailRate = 1.0
	snap.AvgQuality = 0

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestEvaluateQualityFloorDisabled(t *testing.T) {
	cfg := monitoringConfig()
	cfg.QualityFloor = 0
	a := NewAlerter(cfg)

	snap := healthySnapshot()
	snap.AvgQuality = 5.0

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestSendAlertsWebhook(t *testing.T) {
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received = append(received, alert)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := monitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	alerts := []Alert{
		{Type: AlertFailureRate, Severity: "high", Message: "failure rate high"},
		{Type: AlertQualityDrift, Severity: "medium", Message: "quality low"},
	}
	sent := a.SendAlerts(context.Background(), alerts)

	assert.Equal(t, 2, sent)
	require.Len(t, received, 2)
	assert.Equal(t, AlertFailureRate, received[0].Type)
}

func TestSendAlertsRedeliversAfterOutage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := monitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSendAlertsPermanentErrorNotRedelivered(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := monitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Zero(t, sent)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSendAlertsWebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := monitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Zero(t, sent)
}

func TestSendAlertsNoWebhook(t *testing.T) {
	a := NewAlerter(monitoringConfig())

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Zero(t, sent)
}
