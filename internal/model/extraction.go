package model

import "time"

// Extraction strategy identifiers. These form a closed set; the merge engine
// and the fallback chain select by explicit enumeration, never by reflection.
const (
	SourceRegex      = "regex"
	SourceLayout     = "layout"
	SourceGenerative = "generative"
	SourceDocParse   = "docparse"
	SourceComputed   = "computed"
	SourceArithmetic = "arithmetic"
)

// Extraction is one strategy's attempt at an invoice, with per-field
// confidence (0-100) and provenance. It is produced by a single extractor,
// consumed by the merge engine, and discarded after merge.
type Extraction struct {
	Source     string             `json:"source"`
	Record     InvoiceRecord      `json:"record"`
	Confidence map[string]float64 `json:"confidence,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
}

// SourceMetadata summarizes how much one extraction source produced.
type SourceMetadata struct {
	SourceType      string    `json:"source_type"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
	IsComplete      bool      `json:"is_complete"`
	ExtractedFields int       `json:"extracted_fields"`
}

// keyFields are the fields counted when summarizing extraction coverage.
var keyFields = []string{
	FieldInvoiceNumber,
	FieldVendorName,
	FieldBuyerName,
	FieldInvoiceDate,
	FieldDueDate,
	FieldCurrency,
	FieldTotalAmount,
	FieldLineItems,
}

// NewSourceMetadata builds metadata for an extraction: counts populated key
// fields, flags complete extractions, and assigns a coarse confidence band.
func NewSourceMetadata(sourceType string, record *InvoiceRecord) SourceMetadata {
	extracted := 0
	for _, key := range keyFields {
		if HasValue(record.Field(key)) {
			extracted++
		}
	}

	confidence := 60.0
	if extracted >= 6 {
		confidence = 85.0
	}

	return SourceMetadata{
		SourceType:      sourceType,
		Confidence:      confidence,
		Timestamp:       time.Now().UTC(),
		IsComplete:      extracted >= len(keyFields),
		ExtractedFields: extracted,
	}
}
