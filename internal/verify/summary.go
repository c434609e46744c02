package verify

import "github.com/sells-group/invoice-cli/internal/model"

// BatchSummary aggregates verification outcomes across a batch of invoices.
type BatchSummary struct {
	Total             int     `json:"total"`
	Verified          int     `json:"verified"`
	HighConfidence    int     `json:"high_confidence"`
	ReviewNeeded      int     `json:"review_needed"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Summarize computes batch statistics over verification results.
func Summarize(results []*model.VerificationResult) BatchSummary {
	summary := BatchSummary{Total: len(results)}
	if len(results) == 0 {
		return summary
	}

	sum := 0.0
	for _, r := range results {
		sum += r.OverallConfidence
		switch r.Status {
		case model.StatusVerified:
			summary.Verified++
		case model.StatusHighConfidence:
			summary.HighConfidence++
		case model.StatusReviewNeeded:
			summary.ReviewNeeded++
		}
	}
	summary.AverageConfidence = sum / float64(len(results))
	return summary
}
