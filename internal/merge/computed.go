package merge

import (
	"fmt"

	"github.com/sells-group/invoice-cli/internal/model"
)

// computedConfidence applies to amounts derived from the other two, rather
// than read from any source.
const computedConfidence = 80.0

// backfillComputedFields derives tax from total and subtotal (or subtotal
// from total and tax) when exactly one of the pair is missing. The derivation
// updates the field's comparison in place so the audit trail shows the value
// was computed, not extracted.
func backfillComputedFields(result *model.MergeResult) {
	rec := &result.Record

	if rec.TaxAmount == nil && rec.TotalAmount != nil && rec.Subtotal != nil {
		total, subtotal := *rec.TotalAmount, *rec.Subtotal
		// Sanity bound: a tax exceeding half the total is more likely a
		// misread subtotal than a real rate.
		if abs(total-subtotal) < total*0.5 {
			tax := total - subtotal
			rec.TaxAmount = model.Num(tax)
			markComputed(result, model.FieldTaxAmount, tax, "derived as total minus subtotal")
		}
	}

	if rec.Subtotal == nil && rec.TotalAmount != nil && rec.TaxAmount != nil {
		subtotal := *rec.TotalAmount - *rec.TaxAmount
		if subtotal > 0 {
			rec.Subtotal = model.Num(subtotal)
			markComputed(result, model.FieldSubtotal, subtotal, "derived as total minus tax")
		}
	}
}

func markComputed(result *model.MergeResult, field string, value float64, reason string) {
	for i := range result.Comparisons {
		if result.Comparisons[i].FieldName != field {
			continue
		}
		result.Comparisons[i].SelectedValue = value
		result.Comparisons[i].SelectedSource = model.SourceComputed
		result.Comparisons[i].Reason = reason
		result.Comparisons[i].Confidence = computedConfidence
		break
	}
	result.Notes = append(result.Notes, fmt.Sprintf("%s: %s (%.2f)", field, reason, value))
}
