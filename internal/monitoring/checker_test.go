package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/store"
)

func TestCheckerRunStopsOnCancel(t *testing.T) {
	checker := NewChecker(
		NewCollector(&fakeStore{}),
		NewAlerter(monitoringConfig()),
		config.MonitoringConfig{CheckIntervalSecs: 3600},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop after context cancel")
	}
}

func TestCheckerChecksAtStartup(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var invoices []store.Invoice
	for i := 0; i < 10; i++ {
		invoices = append(invoices, storedInvoice(false, 20, 20, time.Hour))
	}

	// An interval far beyond the test's lifetime: only the startup check
	// can deliver the alert.
	cfg := monitoringConfig()
	cfg.WebhookURL = srv.URL
	cfg.CheckIntervalSecs = 3600

	checker := NewChecker(NewCollector(&fakeStore{invoices: invoices}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	assert.Positive(t, hits.Load())
}

func TestCheckerFiresAlert(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var invoices []store.Invoice
	for i := 0; i < 10; i++ {
		invoices = append(invoices, storedInvoice(false, 20, 20, time.Hour))
	}

	cfg := monitoringConfig()
	cfg.WebhookURL = srv.URL
	cfg.CheckIntervalSecs = 1
	cfg.LookbackWindowHours = 24

	checker := NewChecker(NewCollector(&fakeStore{invoices: invoices}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go checker.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	assert.Positive(t, hits.Load())
}
