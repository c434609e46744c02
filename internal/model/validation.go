package model

// ValidationResult is the verdict over one InvoiceRecord. Errors block
// validity; warnings only reduce the score. The score starts at 100 and is
// floored at 0 once, at output time.
type ValidationResult struct {
	InvoiceID     string         `json:"invoice_id,omitempty"`
	InvoiceNumber string         `json:"invoice_number,omitempty"`
	IsValid       bool           `json:"is_valid"`
	Score         int            `json:"score"`
	Errors        []string       `json:"errors"`
	Warnings      []string       `json:"warnings"`
	Record        *InvoiceRecord `json:"extracted_data,omitempty"`
}
