package model

import "time"

// Verification status tags.
const (
	StatusVerified       = "Verified"
	StatusHighConfidence = "High Confidence"
	StatusReviewNeeded   = "Review Needed"
	StatusLowConfidence  = "Low Confidence"
)

// FieldCorrection is a single suggested correction from the verifier.
type FieldCorrection struct {
	FieldName      string  `json:"field_name"`
	OriginalValue  any     `json:"original_value"`
	CorrectedValue any     `json:"corrected_value"`
	Confidence     float64 `json:"confidence"`
	Source         string  `json:"source"`
	Reasoning      string  `json:"reasoning"`
	RequiresReview bool    `json:"requires_review"`
}

// VerificationResult is the outcome of the secondary cross-check pass.
type VerificationResult struct {
	InvoiceNumber     string            `json:"invoice_number"`
	Corrections       []FieldCorrection `json:"corrections"`
	OverallConfidence float64           `json:"overall_confidence"`
	Status            string            `json:"status"`
	Summary           string            `json:"summary"`
	Timestamp         time.Time         `json:"timestamp"`
}
