// Package verify is the secondary cross-check stage: each critical field is
// independently re-examined by the generative model, and the amount
// relationships are re-verified arithmetically without any external call.
// Verification never fails a record; it only attaches corrections and a
// status.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/normalize"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/pkg/anthropic"
)

const (
	arithmeticConfidence = 95.0
	arithmeticTolerance  = 0.01
	baseConfidence       = 95.0

	lowConfidence  = 60.0
	highConfidence = 85.0
)

// criticalFields are cross-checked against the model, in this order.
var criticalFields = []string{
	model.FieldVendorName,
	model.FieldBuyerName,
	model.FieldInvoiceNumber,
	model.FieldInvoiceDate,
	model.FieldDueDate,
	model.FieldTotalAmount,
	model.FieldCurrency,
}

const verifySystemPrompt = `You verify a single field extracted from an invoice against the full invoice record.
Judge whether the extracted value is plausible and correctly formatted. If it is wrong, supply the corrected value.
Return ONLY a valid JSON object, no explanations and no markdown:
{
  "corrected_value": the corrected (or unchanged) value,
  "confidence": number 0-100,
  "reasoning": "short explanation",
  "requires_review": boolean
}`

// Verifier runs the cross-check stage. A nil model client restricts it to the
// arithmetic checks.
type Verifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	costs     *cost.Calculator
	retry     resilience.RetryConfig
}

// New creates a Verifier. rps bounds model calls; zero disables the limiter.
func New(client anthropic.Client, modelID string, maxTokens int64, rps float64) *Verifier {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Verifier{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		limiter:   limiter,
		retry:     resilience.DefaultRetryConfig(),
	}
}

// WithRetry overrides the retry policy for model calls.
func (v *Verifier) WithRetry(cfg resilience.RetryConfig) *Verifier {
	v.retry = cfg
	return v
}

// WithCosts attaches a spend accumulator. Nil leaves cost tracking off.
func (v *Verifier) WithCosts(calc *cost.Calculator) *Verifier {
	v.costs = calc
	return v
}

// Verify cross-checks the record. Per-field model failures are skipped
// silently; the arithmetic checks always run.
func (v *Verifier) Verify(ctx context.Context, record *model.InvoiceRecord) *model.VerificationResult {
	var corrections []model.FieldCorrection

	if v.client != nil {
		for _, field := range criticalFields {
			value := record.Field(field)
			if !model.HasValue(value) {
				continue
			}
			correction, err := v.verifyField(ctx, record, field, value)
			if err != nil {
				zap.L().Debug("field verification skipped",
					zap.String("field", field),
					zap.Error(err),
				)
				continue
			}
			if correction != nil {
				corrections = append(corrections, *correction)
			}
		}
	}

	corrections = append(corrections, arithmeticCorrections(record)...)

	status, confidence := deriveStatus(corrections)
	result := &model.VerificationResult{
		Corrections:       corrections,
		OverallConfidence: confidence,
		Status:            status,
		Summary:           fmt.Sprintf("Verification complete. Status: %s (%d corrections)", status, len(corrections)),
		Timestamp:         time.Now().UTC(),
	}
	if record.InvoiceNumber != nil {
		result.InvoiceNumber = *record.InvoiceNumber
	}
	return result
}

type verdict struct {
	CorrectedValue any     `json:"corrected_value"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	RequiresReview bool    `json:"requires_review"`
}

// verifyField asks the model for a verdict on one field. A nil correction
// with nil error means the model agreed with the extracted value.
func (v *Verifier) verifyField(ctx context.Context, record *model.InvoiceRecord, field string, value any) (*model.FieldCorrection, error) {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "verify: rate limit wait")
		}
	}

	context_, err := json.Marshal(record)
	if err != nil {
		return nil, eris.Wrap(err, "verify: marshal record")
	}

	prompt := fmt.Sprintf("Field: %s\nExtracted value: %v\n\nFull invoice record for context:\n%s",
		field, value, context_)

	retryCfg := v.retry
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "verify")
	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return v.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     v.model,
			MaxTokens: v.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(verifySystemPrompt),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "verify: model call for %s", field)
	}
	resp.Usage.LogCost(v.model, "verify")
	if v.costs != nil {
		v.costs.Claude(v.model,
			int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens),
			int(resp.Usage.CacheCreationInputTokens), int(resp.Usage.CacheReadInputTokens))
	}

	var vd verdict
	if err := json.Unmarshal([]byte(extractJSON(resp.Text())), &vd); err != nil {
		return nil, eris.Wrapf(err, "verify: parse verdict for %s", field)
	}

	corrected, ok := coerceValue(field, vd.CorrectedValue)
	if !ok {
		return nil, eris.Errorf("verify: unusable corrected value for %s", field)
	}
	if valuesEqual(field, value, corrected) {
		return nil, nil
	}

	return &model.FieldCorrection{
		FieldName:      field,
		OriginalValue:  value,
		CorrectedValue: corrected,
		Confidence:     vd.Confidence,
		Source:         model.SourceGenerative,
		Reasoning:      vd.Reasoning,
		RequiresReview: vd.RequiresReview,
	}, nil
}

// arithmeticCorrections re-verifies the amount relationships without any
// external call: per-line quantity times unit price against the line total,
// and subtotal plus tax against the grand total.
func arithmeticCorrections(record *model.InvoiceRecord) []model.FieldCorrection {
	var corrections []model.FieldCorrection

	for i, item := range record.LineItems {
		if item.Quantity == nil || item.UnitPrice == nil || item.Total == nil {
			continue
		}
		expected := *item.Quantity * *item.UnitPrice
		if abs(expected-*item.Total) > arithmeticTolerance {
			corrections = append(corrections, model.FieldCorrection{
				FieldName:      fmt.Sprintf("line_items[%d].total", i),
				OriginalValue:  *item.Total,
				CorrectedValue: expected,
				Confidence:     arithmeticConfidence,
				Source:         model.SourceArithmetic,
				Reasoning:      "quantity times unit price disagrees with the line total",
			})
		}
	}

	if record.Subtotal != nil && record.TaxAmount != nil && record.TotalAmount != nil {
		expected := *record.Subtotal + *record.TaxAmount
		if abs(expected-*record.TotalAmount) > arithmeticTolerance {
			corrections = append(corrections, model.FieldCorrection{
				FieldName:      model.FieldTotalAmount,
				OriginalValue:  *record.TotalAmount,
				CorrectedValue: expected,
				Confidence:     arithmeticConfidence,
				Source:         model.SourceArithmetic,
				Reasoning:      "subtotal plus tax disagrees with the total",
			})
		}
	}

	return corrections
}

// deriveStatus maps the correction set to a verification status and an
// overall confidence.
func deriveStatus(corrections []model.FieldCorrection) (string, float64) {
	if len(corrections) == 0 {
		return model.StatusVerified, baseConfidence
	}

	sum := 0.0
	anyLow := false
	anyReview := false
	allHigh := true
	for _, c := range corrections {
		sum += c.Confidence
		if c.Confidence < lowConfidence {
			anyLow = true
		}
		if c.RequiresReview {
			anyReview = true
		}
		if c.Confidence < highConfidence {
			allHigh = false
		}
	}
	overall := sum / float64(len(corrections))

	switch {
	case anyLow, anyReview:
		return model.StatusReviewNeeded, overall
	case allHigh:
		return model.StatusHighConfidence, overall
	default:
		return model.StatusVerified, overall
	}
}

// coerceValue converts the model's corrected value to the field's canonical
// type.
func coerceValue(field string, raw any) (any, bool) {
	if model.IsNumericField(field) {
		switch n := raw.(type) {
		case float64:
			return n, true
		case string:
			return normalize.Amount(n)
		default:
			return nil, false
		}
	}

	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	switch field {
	case model.FieldInvoiceDate, model.FieldDueDate:
		d := normalize.Date(s)
		return d, d != ""
	default:
		return normalize.Identifier(s)
	}
}

func valuesEqual(field string, original, corrected any) bool {
	if model.IsNumericField(field) {
		o, ok1 := original.(float64)
		c, ok2 := corrected.(float64)
		return ok1 && ok2 && abs(o-c) <= arithmeticTolerance
	}
	o, ok1 := original.(string)
	c, ok2 := corrected.(string)
	return ok1 && ok2 && strings.TrimSpace(o) == strings.TrimSpace(c)
}

// extractJSON strips markdown fences and surrounding prose, keeping the
// outermost object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
