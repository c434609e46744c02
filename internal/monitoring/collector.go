// Package monitoring watches the stored invoice corpus and raises webhook
// alerts when the recent failure rate or quality drifts past configured
// thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/store"
)

// collectLimit bounds how many recent invoices one snapshot scans.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of processing health.
type MetricsSnapshot struct {
	// Invoice metrics (within lookback window).
	Total      int     `json:"total"`
	Valid      int     `json:"valid"`
	Invalid    int     `json:"invalid"`
	FailRate   float64 `json:"fail_rate"`
	AvgScore   float64 `json:"avg_score"`
	AvgQuality float64 `json:"avg_quality"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	invoices, err := c.store.ListInvoices(ctx, collectLimit, 0)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list invoices")
	}

	var totalScore, totalQuality float64
	for _, inv := range invoices {
		if inv.CreatedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		if inv.IsValid {
			snap.Valid++
		} else {
			snap.Invalid++
		}
		totalScore += float64(inv.Score)
		totalQuality += inv.QualityScore
	}

	if snap.Total > 0 {
		snap.FailRate = float64(snap.Invalid) / float64(snap.Total)
		snap.AvgScore = totalScore / float64(snap.Total)
		snap.AvgQuality = totalQuality / float64(snap.Total)
	}
	return snap, nil
}
