package extract

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/normalize"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/pkg/docparse"
)

// minEntityConfidence is the service-reported confidence below which an
// entity is discarded rather than mapped.
const minEntityConfidence = 0.7

// entityFieldMap translates the parsing service's entity types to canonical
// field names. The service speaks supplier/receiver; the schema speaks
// vendor/buyer.
var entityFieldMap = map[string]string{
	"invoice_id":       model.FieldInvoiceNumber,
	"invoice_number":   model.FieldInvoiceNumber,
	"supplier_name":    model.FieldVendorName,
	"supplier_address": model.FieldVendorAddress,
	"supplier_tax_id":  model.FieldVendorTaxID,
	"receiver_name":    model.FieldBuyerName,
	"receiver_address": model.FieldBuyerAddress,
	"receiver_tax_id":  model.FieldBuyerTaxID,
	"invoice_date":     model.FieldInvoiceDate,
	"due_date":         model.FieldDueDate,
	"currency":         model.FieldCurrency,
	"net_amount":       model.FieldSubtotal,
	"total_tax_amount": model.FieldTaxAmount,
	"total_amount":     model.FieldTotalAmount,
	"payment_terms":    model.FieldPaymentTerms,
}

// lineItemPropertyMap translates line_item sub-entity types to cells.
var lineItemPropertyMap = map[string]string{
	"line_item/description": "description",
	"line_item/quantity":    "quantity",
	"line_item/unit_price":  "unit_price",
	"line_item/amount":      "amount",
}

// DocParseExtractor maps the document parsing service's entity list onto the
// canonical schema, accepting only entities above the confidence threshold.
type DocParseExtractor struct {
	client  docparse.Client
	breaker *resilience.CircuitBreaker
	costs   *cost.Calculator
}

// NewDocParseExtractor creates a DocParseExtractor. Repeated service failures
// trip the breaker so later documents in a batch skip the call immediately.
func NewDocParseExtractor(client docparse.Client) *DocParseExtractor {
	return &DocParseExtractor{
		client:  client,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
}

// WithCosts attaches a spend accumulator. Nil leaves cost tracking off.
func (e *DocParseExtractor) WithCosts(calc *cost.Calculator) *DocParseExtractor {
	e.costs = calc
	return e
}

// WithBreaker replaces the default circuit breaker configuration.
func (e *DocParseExtractor) WithBreaker(cfg resilience.CircuitBreakerConfig) *DocParseExtractor {
	e.breaker = resilience.NewCircuitBreaker(cfg)
	return e
}

func (e *DocParseExtractor) Name() string { return model.SourceDocParse }

func (e *DocParseExtractor) Extract(ctx context.Context, doc *document.Document) (*model.Extraction, error) {
	resp, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*docparse.ProcessResponse, error) {
		r, callErr := e.client.ProcessFile(ctx, doc.Path)
		return r, classifyServiceError(callErr)
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: docparse service")
	}
	if e.costs != nil {
		pages := doc.PageCount
		if pages < 1 {
			pages = 1
		}
		e.costs.DocParse(pages)
	}

	ext := &model.Extraction{
		Source:     model.SourceDocParse,
		Confidence: map[string]float64{},
	}

	for _, entity := range resp.Document.Entities {
		if entity.Type == "line_item" {
			if item, ok := mapLineItem(entity); ok {
				ext.Record.LineItems = append(ext.Record.LineItems, item)
			}
			continue
		}

		if entity.Confidence < minEntityConfidence {
			continue
		}
		field, ok := entityFieldMap[entity.Type]
		if !ok {
			continue
		}
		if model.HasValue(ext.Record.Field(field)) {
			continue
		}

		value, ok := normalizeEntity(field, entity.Value())
		if !ok {
			continue
		}
		ext.Record.SetField(field, value)
		ext.Confidence[field] = entity.Confidence * 100
	}

	if len(ext.Record.LineItems) > 0 {
		ext.Confidence[model.FieldLineItems] = minEntityConfidence * 100
	}

	return ext, nil
}

// classifyServiceError marks throttling and outage responses as transient so
// the breaker trips on service trouble, not on rejected documents.
func classifyServiceError(err error) error {
	if err == nil {
		return nil
	}
	var se *docparse.StatusError
	if errors.As(err, &se) && se.Retryable() {
		return resilience.NewTransientError(err, se.StatusCode)
	}
	return err
}

// normalizeEntity converts entity text into the canonical representation for
// its target field.
func normalizeEntity(field, raw string) (any, bool) {
	if model.IsNumericField(field) {
		v, ok := normalize.Amount(raw)
		return v, ok
	}
	switch field {
	case model.FieldInvoiceDate, model.FieldDueDate:
		d := normalize.Date(raw)
		return d, d != ""
	default:
		return normalize.Identifier(raw)
	}
}

func mapLineItem(entity docparse.Entity) (model.LineItem, bool) {
	var item model.LineItem
	for _, prop := range entity.Properties {
		cell, ok := lineItemPropertyMap[prop.Type]
		if !ok || prop.Confidence < minEntityConfidence {
			continue
		}
		switch cell {
		case "description":
			item.Description = strings.TrimSpace(prop.Value())
		case "quantity":
			if v, ok := normalize.Amount(prop.Value()); ok {
				item.Quantity = model.Num(v)
			}
		case "unit_price":
			if v, ok := normalize.Amount(prop.Value()); ok {
				item.UnitPrice = model.Num(v)
			}
		case "amount":
			if v, ok := normalize.Amount(prop.Value()); ok {
				item.Total = model.Num(v)
			}
		}
	}
	return item, item.Description != ""
}
