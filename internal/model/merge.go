package model

import "time"

// Merge recommendations, derived from the quality score.
const (
	RecommendApprove = "approve"
	RecommendReview  = "review"
	RecommendReject  = "reject"
)

// FieldComparison is the audit record for a single merged field: what each
// source produced, what was selected and why, and whether the sources
// disagreed beyond tolerance.
type FieldComparison struct {
	FieldName      string         `json:"field_name"`
	SourceValues   map[string]any `json:"source_values"`
	SelectedValue  any            `json:"selected_value"`
	SelectedSource string         `json:"selected_source,omitempty"`
	Reason         string         `json:"selection_reason"`
	Confidence     float64        `json:"confidence_score"`
	Mismatch       bool           `json:"is_mismatch"`
	Recommendation string         `json:"recommendation,omitempty"`
}

// MergeResult is the complete outcome of reconciling multiple extractions.
type MergeResult struct {
	Record         InvoiceRecord             `json:"record"`
	Comparisons    []FieldComparison         `json:"field_comparisons"`
	Mismatches     []string                  `json:"mismatches,omitempty"`
	Notes          []string                  `json:"notes,omitempty"`
	Sources        map[string]SourceMetadata `json:"source_metadata,omitempty"`
	QualityScore   float64                   `json:"quality_score"`
	Recommendation string                    `json:"recommendation"`
	MergedAt       time.Time                 `json:"merged_at"`
}
