package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/normalize"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/pkg/anthropic"
)

// generativeConfidence applies to every field the model returns. The model
// sits at the top of the trust hierarchy, so its values are taken as-is.
const generativeConfidence = 95.0

// maxPromptChars caps the invoice text sent to the model.
const maxPromptChars = 8000

const generativeSystemPrompt = `You extract structured data from invoices. Invoices may be in English or German.
Return ONLY a valid JSON object, no explanations and no markdown formatting.

Common German invoice terms:
- Rechnung/Rechnungsnummer = Invoice/Invoice Number
- Kunde/Käufer/Rechnungsempfänger = Buyer/Customer
- Verkäufer/Lieferant = Vendor
- Datum/Rechnungsdatum = Date/Invoice Date
- Fälligkeitsdatum/Fällig am = Due Date
- Gesamtbetrag/Gesamtsumme = Total Amount
- Zwischensumme = Subtotal
- MwSt/Mehrwertsteuer/Umsatzsteuer = Tax/VAT
- Zahlungsbedingungen/Zahlungsziel = Payment Terms`

const generativeSchema = `{
  "invoice_number": "string or null",
  "vendor_name": "string or null",
  "buyer_name": "string or null",
  "vendor_address": "string or null",
  "buyer_address": "string or null",
  "vendor_tax_id": "string or null",
  "buyer_tax_id": "string or null",
  "invoice_date": "YYYY-MM-DD format or null",
  "due_date": "YYYY-MM-DD format or null",
  "currency": "USD/EUR/GBP/INR etc or null",
  "subtotal": number or null,
  "tax_amount": number or null,
  "total_amount": number or null,
  "payment_terms": "string or null",
  "line_items": [
    {
      "description": "string",
      "quantity": number or null,
      "price": number or null,
      "total": number or null
    }
  ]
}`

// GenerativeExtractor asks a generative model for the full record in one
// strict-JSON prompt. For scanned documents the original PDF is attached so
// the model reads the page images directly.
type GenerativeExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	costs     *cost.Calculator
	retry     resilience.RetryConfig
}

// NewGenerativeExtractor creates a GenerativeExtractor. rps bounds the
// request rate across concurrent documents; zero disables the limiter.
func NewGenerativeExtractor(client anthropic.Client, modelID string, maxTokens int64, rps float64) *GenerativeExtractor {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &GenerativeExtractor{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		limiter:   limiter,
		retry:     resilience.DefaultRetryConfig(),
	}
}

// WithRetry overrides the retry policy for model calls.
func (e *GenerativeExtractor) WithRetry(cfg resilience.RetryConfig) *GenerativeExtractor {
	e.retry = cfg
	return e
}

// WithCosts attaches a spend accumulator. Nil leaves cost tracking off.
func (e *GenerativeExtractor) WithCosts(calc *cost.Calculator) *GenerativeExtractor {
	e.costs = calc
	return e
}

func (e *GenerativeExtractor) Name() string { return model.SourceGenerative }

// Extract returns an error only when the model call itself fails. A response
// that cannot be parsed as JSON yields an empty record with a note.
func (e *GenerativeExtractor) Extract(ctx context.Context, doc *document.Document) (*model.Extraction, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "extract: rate limit wait")
		}
	}

	msg := anthropic.Message{Role: "user"}
	if doc.Scanned && doc.Path != "" {
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: read %s for vision prompt", doc.Path)
		}
		msg.Document = &anthropic.DocumentBlock{
			MediaType: "application/pdf",
			Data:      base64.StdEncoding.EncodeToString(data),
		}
		msg.Content = "Extract the invoice data from the attached document. Return ONLY JSON with this exact structure:\n" + generativeSchema
	} else {
		text := doc.Text
		if len(text) > maxPromptChars {
			text = text[:maxPromptChars]
		}
		msg.Content = "Extract the invoice data from this text. Return ONLY JSON with this exact structure:\n" +
			generativeSchema + "\n\nInvoice text:\n" + text
	}

	retryCfg := e.retry
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "extract")
	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(generativeSystemPrompt),
			Messages:  []anthropic.Message{msg},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: generative model call")
	}
	resp.Usage.LogCost(e.model, "extract")
	if e.costs != nil {
		e.costs.Claude(e.model,
			int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens),
			int(resp.Usage.CacheCreationInputTokens), int(resp.Usage.CacheReadInputTokens))
	}

	ext := &model.Extraction{
		Source:     model.SourceGenerative,
		Confidence: map[string]float64{},
	}

	record, err := parseModelJSON(resp.Text())
	if err != nil {
		zap.L().Warn("generative response was not valid JSON", zap.Error(err))
		ext.Notes = append(ext.Notes, "model response was not valid JSON")
		return ext, nil
	}

	ext.Record = *record
	for _, field := range model.AllFields {
		if model.HasValue(record.Field(field)) {
			ext.Confidence[field] = generativeConfidence
		}
	}
	return ext, nil
}

// flexNumber accepts JSON numbers and numeric strings, since models sometimes
// quote amounts despite the schema.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexNumber(v)
	return nil
}

type modelRecord struct {
	InvoiceNumber *string     `json:"invoice_number"`
	VendorName    *string     `json:"vendor_name"`
	BuyerName     *string     `json:"buyer_name"`
	VendorAddress *string     `json:"vendor_address"`
	BuyerAddress  *string     `json:"buyer_address"`
	VendorTaxID   *string     `json:"vendor_tax_id"`
	BuyerTaxID    *string     `json:"buyer_tax_id"`
	InvoiceDate   *string     `json:"invoice_date"`
	DueDate       *string     `json:"due_date"`
	Currency      *string     `json:"currency"`
	Subtotal      *flexNumber `json:"subtotal"`
	TaxAmount     *flexNumber `json:"tax_amount"`
	TotalAmount   *flexNumber `json:"total_amount"`
	PaymentTerms  *string     `json:"payment_terms"`
	LineItems     []modelItem `json:"line_items"`
}

type modelItem struct {
	Description string      `json:"description"`
	Quantity    *flexNumber `json:"quantity"`
	Price       *flexNumber `json:"price"`
	Total       *flexNumber `json:"total"`
}

// parseModelJSON strips code fences and surrounding prose, then unmarshals
// the remaining object into a normalized record.
func parseModelJSON(raw string) (*model.InvoiceRecord, error) {
	cleaned := stripJSONWrapping(raw)

	var mr modelRecord
	if err := json.Unmarshal([]byte(cleaned), &mr); err != nil {
		return nil, eris.Wrap(err, "extract: unmarshal model JSON")
	}

	rec := &model.InvoiceRecord{}
	setStr := func(field string, v *string) {
		if v == nil {
			return
		}
		if s, ok := normalize.Identifier(*v); ok {
			rec.SetField(field, s)
		}
	}
	setNum := func(field string, v *flexNumber) {
		if v != nil {
			rec.SetField(field, float64(*v))
		}
	}

	setStr(model.FieldInvoiceNumber, mr.InvoiceNumber)
	setStr(model.FieldVendorName, mr.VendorName)
	setStr(model.FieldBuyerName, mr.BuyerName)
	setStr(model.FieldVendorAddress, mr.VendorAddress)
	setStr(model.FieldBuyerAddress, mr.BuyerAddress)
	setStr(model.FieldVendorTaxID, mr.VendorTaxID)
	setStr(model.FieldBuyerTaxID, mr.BuyerTaxID)
	setStr(model.FieldCurrency, mr.Currency)
	setStr(model.FieldPaymentTerms, mr.PaymentTerms)
	setNum(model.FieldSubtotal, mr.Subtotal)
	setNum(model.FieldTaxAmount, mr.TaxAmount)
	setNum(model.FieldTotalAmount, mr.TotalAmount)

	if mr.InvoiceDate != nil {
		if d := normalize.Date(*mr.InvoiceDate); d != "" {
			rec.InvoiceDate = model.Str(d)
		}
	}
	if mr.DueDate != nil {
		if d := normalize.Date(*mr.DueDate); d != "" {
			rec.DueDate = model.Str(d)
		}
	}

	for _, item := range mr.LineItems {
		li := model.LineItem{Description: strings.TrimSpace(item.Description)}
		if item.Quantity != nil {
			li.Quantity = model.Num(float64(*item.Quantity))
		}
		if item.Price != nil {
			li.UnitPrice = model.Num(float64(*item.Price))
		}
		if item.Total != nil {
			li.Total = model.Num(float64(*item.Total))
		}
		rec.LineItems = append(rec.LineItems, li)
	}

	return rec, nil
}

// stripJSONWrapping removes markdown fences and keeps the outermost object.
func stripJSONWrapping(raw string) string {
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
