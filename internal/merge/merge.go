// Package merge reconciles the candidate extractions into one final invoice
// record. Selection is deterministic: a static source priority breaks ties,
// per-field reliability weights set confidence, and every decision leaves a
// FieldComparison behind for audit.
package merge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Thresholds are the contractual merge constants. Callers normally use
// DefaultThresholds; the values are part of the scoring contract, not tuning
// knobs.
type Thresholds struct {
	NumericDivergencePct float64 // mismatch when sources diverge by more
	TextSimilarity       float64 // equivalent when similarity is at least this
	MismatchPenalty      float64 // quality points lost per mismatch
	ApproveScore         float64
	ReviewScore          float64
}

// DefaultThresholds returns the contractual defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NumericDivergencePct: 5,
		TextSimilarity:       0.85,
		MismatchPenalty:      5,
		ApproveScore:         85,
		ReviewScore:          60,
	}
}

// sourcePriority orders the strategies when their values disagree. Higher
// wins. The merge never averages; it picks the highest-priority value and
// records the disagreement.
var sourcePriority = map[string]int{
	model.SourceDocParse:   4,
	model.SourceGenerative: 3,
	model.SourceLayout:     2,
	model.SourceRegex:      1,
}

// fieldWeights hold the static per-field reliability, split into the local
// column (layout, regex) and the assisted column (generative, docparse).
var fieldWeights = map[string]struct{ local, assisted float64 }{
	model.FieldInvoiceNumber: {0.85, 0.95},
	model.FieldVendorName:    {0.80, 0.90},
	model.FieldVendorAddress: {0.75, 0.85},
	model.FieldVendorTaxID:   {0.70, 0.85},
	model.FieldBuyerName:     {0.80, 0.90},
	model.FieldBuyerAddress:  {0.75, 0.85},
	model.FieldBuyerTaxID:    {0.70, 0.85},
	model.FieldInvoiceDate:   {0.85, 0.95},
	model.FieldDueDate:       {0.80, 0.90},
	model.FieldCurrency:      {0.90, 0.95},
	model.FieldSubtotal:      {0.85, 0.90},
	model.FieldTaxAmount:     {0.85, 0.90},
	model.FieldTotalAmount:   {0.90, 0.95},
	model.FieldPaymentTerms:  {0.70, 0.80},
	model.FieldLineItems:     {0.75, 0.85},
}

func weightFor(field, source string) float64 {
	w, ok := fieldWeights[field]
	assisted := source == model.SourceGenerative || source == model.SourceDocParse
	if !ok {
		if assisted {
			return 0.8
		}
		return 0.7
	}
	if assisted {
		return w.assisted
	}
	return w.local
}

// Merger reconciles extractions field by field.
type Merger struct {
	thresholds Thresholds
}

// New creates a Merger.
func New(thresholds Thresholds) *Merger {
	return &Merger{thresholds: thresholds}
}

type candidate struct {
	source string
	value  any
}

// Merge selects one final value per field, flags mismatches, backfills
// computable amounts, and scores the result. It accepts any number of
// extractions, including zero.
func (m *Merger) Merge(extractions []*model.Extraction) *model.MergeResult {
	result := &model.MergeResult{
		Sources:  map[string]model.SourceMetadata{},
		MergedAt: time.Now().UTC(),
	}

	for _, ext := range extractions {
		result.Sources[ext.Source] = model.NewSourceMetadata(ext.Source, &ext.Record)
		for _, note := range ext.Notes {
			result.Notes = append(result.Notes, ext.Source+": "+note)
		}
	}

	for _, field := range model.AllFields {
		comparison := m.selectField(field, extractions)
		result.Comparisons = append(result.Comparisons, comparison)
		result.Record.SetField(field, comparison.SelectedValue)

		if comparison.Mismatch {
			result.Mismatches = append(result.Mismatches, mismatchLine(comparison))
		}
	}

	backfillComputedFields(result)
	m.scoreQuality(result)
	return result
}

// selectField applies the selection policy for one field across all sources.
func (m *Merger) selectField(field string, extractions []*model.Extraction) model.FieldComparison {
	comparison := model.FieldComparison{
		FieldName:    field,
		SourceValues: map[string]any{},
	}

	var cands []candidate
	for _, ext := range extractions {
		v := ext.Record.Field(field)
		comparison.SourceValues[ext.Source] = v
		if model.HasValue(v) {
			cands = append(cands, candidate{source: ext.Source, value: v})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return sourcePriority[cands[i].source] > sourcePriority[cands[j].source]
	})

	switch {
	case len(cands) == 0:
		comparison.Reason = "all sources missing"
		return comparison

	case len(cands) == 1:
		comparison.SelectedValue = cands[0].value
		comparison.SelectedSource = cands[0].source
		comparison.Reason = "only source available"
		comparison.Confidence = weightFor(field, cands[0].source) * 100
		return comparison
	}

	if field == model.FieldLineItems {
		return m.selectLineItems(cands, comparison)
	}
	if model.IsNumericField(field) {
		return m.selectNumeric(field, cands, comparison)
	}
	return m.selectText(field, cands, comparison)
}

// selectNumeric picks the highest-priority value and flags divergence beyond
// the threshold against any other source.
func (m *Merger) selectNumeric(field string, cands []candidate, comparison model.FieldComparison) model.FieldComparison {
	selected := cands[0]
	selVal := selected.value.(float64)

	maxDiff := 0.0
	diffSource := cands[1].source
	for _, other := range cands[1:] {
		d := divergencePct(selVal, other.value.(float64))
		if d >= maxDiff {
			maxDiff = d
			diffSource = other.source
		}
	}

	comparison.SelectedValue = selVal
	comparison.SelectedSource = selected.source
	comparison.Confidence = weightFor(field, selected.source) * 100
	comparison.Reason = fmt.Sprintf("%s preferred (%s=%v, %s=%v, diff=%.1f%%)",
		selected.source, selected.source, selVal, diffSource, comparison.SourceValues[diffSource], maxDiff)

	if maxDiff > m.thresholds.NumericDivergencePct {
		comparison.Mismatch = true
		comparison.Recommendation = "Manual review recommended"
	}
	return comparison
}

// selectText picks the highest-priority value; sources are equivalent when
// every pairing meets the similarity threshold.
func (m *Merger) selectText(field string, cands []candidate, comparison model.FieldComparison) model.FieldComparison {
	selected := cands[0]
	selVal := selected.value.(string)

	minSim := 1.0
	for _, other := range cands[1:] {
		if s := Similarity(selVal, other.value.(string)); s < minSim {
			minSim = s
		}
	}

	comparison.SelectedValue = selVal
	comparison.SelectedSource = selected.source
	comparison.Confidence = weightFor(field, selected.source) * 100

	if minSim >= m.thresholds.TextSimilarity {
		comparison.Reason = fmt.Sprintf("similar values (similarity=%.1f%%), using %s", minSim*100, selected.source)
	} else {
		comparison.Mismatch = true
		comparison.Recommendation = "Values differ significantly, review recommended"
		comparison.Reason = fmt.Sprintf("values differ significantly (similarity=%.1f%%), using %s", minSim*100, selected.source)
	}
	return comparison
}

// selectLineItems prefers the more complete list; a count disagreement is
// always a mismatch even when priority and count agree on the winner.
func (m *Merger) selectLineItems(cands []candidate, comparison model.FieldComparison) model.FieldComparison {
	selected := cands[0]
	countsEqual := true
	for _, other := range cands[1:] {
		selItems := selected.value.([]model.LineItem)
		otherItems := other.value.([]model.LineItem)
		if len(otherItems) != len(selItems) {
			countsEqual = false
		}
		if len(otherItems) > len(selItems) {
			selected = other
		}
	}

	selItems := selected.value.([]model.LineItem)
	comparison.SelectedValue = selItems
	comparison.SelectedSource = selected.source

	if countsEqual {
		comparison.Confidence = 85
		comparison.Reason = fmt.Sprintf("same item count (%d), using %s", len(selItems), selected.source)
	} else {
		comparison.Confidence = 90
		comparison.Mismatch = true
		comparison.Recommendation = "Item count mismatch, review recommended"
		comparison.Reason = fmt.Sprintf("%s has the most items (%d)", selected.source, len(selItems))
	}
	return comparison
}

// divergencePct is the percentage difference of selected from other. A zero
// baseline counts as full divergence unless both values are zero.
func divergencePct(selected, other float64) float64 {
	if other != 0 {
		return abs(selected-other) / abs(other) * 100
	}
	if selected != 0 {
		return 100
	}
	return 0
}

// scoreQuality derives the quality score and recommendation from required
// field completeness and the mismatch count.
func (m *Merger) scoreQuality(result *model.MergeResult) {
	completed := 0
	for _, field := range model.RequiredFields {
		if model.HasValue(result.Record.Field(field)) {
			completed++
		}
	}
	completeness := float64(completed) / float64(len(model.RequiredFields)) * 100
	penalty := m.thresholds.MismatchPenalty * float64(len(result.Mismatches))

	result.QualityScore = completeness - penalty
	if result.QualityScore < 0 {
		result.QualityScore = 0
	}

	switch {
	case result.QualityScore >= m.thresholds.ApproveScore:
		result.Recommendation = model.RecommendApprove
	case result.QualityScore >= m.thresholds.ReviewScore:
		result.Recommendation = model.RecommendReview
	default:
		result.Recommendation = model.RecommendReject
	}

	result.Notes = append(result.Notes, fmt.Sprintf(
		"Quality Score: %.1f%% (Completeness=%.1f%%, Mismatches=%d)",
		result.QualityScore, completeness, len(result.Mismatches)))
}

// mismatchLine renders one mismatch for the review list, sources in priority
// order.
func mismatchLine(c model.FieldComparison) string {
	sources := make([]string, 0, len(c.SourceValues))
	for s := range c.SourceValues {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sourcePriority[sources[i]] > sourcePriority[sources[j]]
	})

	parts := make([]string, 0, len(sources)+1)
	for _, s := range sources {
		parts = append(parts, fmt.Sprintf("%s=%s", s, formatValue(c.SourceValues[s])))
	}
	parts = append(parts, fmt.Sprintf("selected=%s (%s)", formatValue(c.SelectedValue), c.Reason))
	return c.FieldName + ": " + strings.Join(parts, ", ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "none"
	case []model.LineItem:
		return fmt.Sprintf("%d items", len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
