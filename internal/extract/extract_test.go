package extract

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/pkg/anthropic"
	"github.com/sells-group/invoice-cli/pkg/docparse"
)

const englishInvoice = `Acme Corporation
123 Main Street
Springfield 12345

INVOICE

Invoice Number: INV-2024-001
Invoice Date: 2024-03-15
Due Date: 2024-04-14

Bill To:
Globex LLC

Description    Qty    Price    Total
Widget A    2    10.00    20.00
Widget B    1    30.00    30.00

Subtotal: $50.00
Tax: $5.00
Total: $55.00

Payment Terms: Net 30
`

const germanInvoice = `Müller Handels GmbH

Rechnungsnummer: RG-2024-556
Rechnungsdatum: 15.03.2024
Fälligkeitsdatum: 14.04.2024

Kunde:
Schmidt AG

Zwischensumme: 1.000,00 €
MwSt: 190,00 €
Gesamtbetrag: 1.190,00 €
`

func TestRegexExtractorEnglish(t *testing.T) {
	doc := &document.Document{Text: englishInvoice}
	ext, err := NewRegexExtractor().Extract(context.Background(), doc)
	require.NoError(t, err)

	rec := ext.Record
	assert.Equal(t, "INV-2024-001", *rec.InvoiceNumber)
	assert.Equal(t, "Acme Corporation", *rec.VendorName)
	assert.Equal(t, "Globex LLC", *rec.BuyerName)
	assert.Equal(t, "2024-03-15", *rec.InvoiceDate)
	assert.Equal(t, "2024-04-14", *rec.DueDate)
	assert.Equal(t, "USD", *rec.Currency)
	assert.Equal(t, 55.0, *rec.TotalAmount)
	assert.Equal(t, 50.0, *rec.Subtotal)
	assert.Equal(t, 5.0, *rec.TaxAmount)
	assert.Equal(t, "Net 30", *rec.PaymentTerms)

	require.Len(t, rec.LineItems, 2)
	assert.Equal(t, "Widget A", rec.LineItems[0].Description)
	assert.Equal(t, 2.0, *rec.LineItems[0].Quantity)
	assert.Equal(t, 10.0, *rec.LineItems[0].UnitPrice)
	assert.Equal(t, 20.0, *rec.LineItems[0].Total)

	assert.Equal(t, regexConfidence, ext.Confidence[model.FieldInvoiceNumber])
}

func TestRegexExtractorGerman(t *testing.T) {
	doc := &document.Document{Text: germanInvoice}
	ext, err := NewRegexExtractor().Extract(context.Background(), doc)
	require.NoError(t, err)

	rec := ext.Record
	assert.Equal(t, "RG-2024-556", *rec.InvoiceNumber)
	assert.Equal(t, "Müller Handels GmbH", *rec.VendorName)
	assert.Equal(t, "Schmidt AG", *rec.BuyerName)
	assert.Equal(t, "2024-03-15", *rec.InvoiceDate)
	assert.Equal(t, "2024-04-14", *rec.DueDate)
	assert.Equal(t, "EUR", *rec.Currency)
	assert.Equal(t, 1190.0, *rec.TotalAmount)
	assert.Equal(t, 1000.0, *rec.Subtotal)
	assert.Equal(t, 190.0, *rec.TaxAmount)
}

func TestRegexExtractorEmptyDocument(t *testing.T) {
	ext, err := NewRegexExtractor().Extract(context.Background(), &document.Document{Text: ""})
	require.NoError(t, err)
	assert.Nil(t, ext.Record.InvoiceNumber)
	assert.Nil(t, ext.Record.TotalAmount)
}

func TestLayoutExtractorVendorFromTopRegion(t *testing.T) {
	doc := &document.Document{
		Text: englishInvoice,
		Words: []document.Word{
			{Text: "Acme", X0: 50, Y0: 750, X1: 90, Y1: 762, Page: 1},
			{Text: "Corporation", X0: 95, Y0: 750, X1: 170, Y1: 762, Page: 1},
			{Text: "INVOICE", X0: 400, Y0: 720, X1: 470, Y1: 734, Page: 1},
		},
	}

	ext, err := NewLayoutExtractor().Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "Acme Corporation", *ext.Record.VendorName)
	assert.Equal(t, layoutVendorConfidence, ext.Confidence[model.FieldVendorName])
	assert.Equal(t, "Globex LLC", *ext.Record.BuyerName)
	assert.Equal(t, "INV-2024-001", *ext.Record.InvoiceNumber)
	assert.Equal(t, layoutInvNumConfidence, ext.Confidence[model.FieldInvoiceNumber])
	assert.Equal(t, 55.0, *ext.Record.TotalAmount)
}

func TestLayoutExtractorSkipsKeywordLines(t *testing.T) {
	doc := &document.Document{
		Words: []document.Word{
			{Text: "INVOICE", X0: 50, Y0: 760, X1: 120, Y1: 772, Page: 1},
			{Text: "Initech", X0: 50, Y0: 740, X1: 110, Y1: 752, Page: 1},
		},
	}
	ext, err := NewLayoutExtractor().Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Initech", *ext.Record.VendorName)
}

// fakeModelClient satisfies anthropic.Client for generative extractor tests.
type fakeModelClient struct {
	resp string
	err  error
}

func (f *fakeModelClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.resp}},
	}, nil
}

func TestGenerativeExtractorParsesFencedJSON(t *testing.T) {
	client := &fakeModelClient{resp: "```json\n" + `{
		"invoice_number": "INV-9",
		"vendor_name": "Acme Inc.",
		"buyer_name": null,
		"invoice_date": "15/03/2024",
		"total_amount": "1234.56",
		"subtotal": 1000,
		"line_items": [{"description": "Consulting", "quantity": 1, "price": 1000, "total": 1000}]
	}` + "\n```"}

	ex := NewGenerativeExtractor(client, "test-model", 1024, 0)
	ext, err := ex.Extract(context.Background(), &document.Document{Text: "irrelevant"})
	require.NoError(t, err)

	rec := ext.Record
	assert.Equal(t, "INV-9", *rec.InvoiceNumber)
	assert.Equal(t, "Acme Inc.", *rec.VendorName)
	assert.Nil(t, rec.BuyerName)
	assert.Equal(t, "2024-03-15", *rec.InvoiceDate)
	assert.Equal(t, 1234.56, *rec.TotalAmount)
	assert.Equal(t, 1000.0, *rec.Subtotal)
	require.Len(t, rec.LineItems, 1)
	assert.Equal(t, "Consulting", rec.LineItems[0].Description)

	assert.Equal(t, generativeConfidence, ext.Confidence[model.FieldInvoiceNumber])
	assert.NotContains(t, ext.Confidence, model.FieldBuyerName)
}

func TestGenerativeExtractorUnparseableResponse(t *testing.T) {
	client := &fakeModelClient{resp: "I could not find any invoice data in this document."}
	ex := NewGenerativeExtractor(client, "test-model", 1024, 0)

	ext, err := ex.Extract(context.Background(), &document.Document{Text: "text"})
	require.NoError(t, err)
	assert.Nil(t, ext.Record.InvoiceNumber)
	assert.Contains(t, ext.Notes, "model response was not valid JSON")
}

func TestGenerativeExtractorModelFailure(t *testing.T) {
	client := &fakeModelClient{err: eris.New("timeout")}
	ex := NewGenerativeExtractor(client, "test-model", 1024, 0)

	_, err := ex.Extract(context.Background(), &document.Document{Text: "text"})
	require.Error(t, err)
}

// fakeDocParseClient satisfies docparse.Client.
type fakeDocParseClient struct {
	resp *docparse.ProcessResponse
	err  error
}

func (f *fakeDocParseClient) ProcessFile(_ context.Context, _ string) (*docparse.ProcessResponse, error) {
	return f.resp, f.err
}

func (f *fakeDocParseClient) Process(_ context.Context, _ []byte) (*docparse.ProcessResponse, error) {
	return f.resp, f.err
}

func TestDocParseExtractorMapsEntities(t *testing.T) {
	client := &fakeDocParseClient{resp: &docparse.ProcessResponse{
		Document: docparse.ParsedDocument{Entities: []docparse.Entity{
			{Type: "invoice_id", MentionText: "INV-7", Confidence: 0.95},
			{Type: "supplier_name", MentionText: "Acme Corp", Confidence: 0.9},
			{Type: "receiver_name", MentionText: "Globex", Confidence: 0.88},
			{Type: "total_amount", MentionText: "$1,500.00", Confidence: 0.92},
			{Type: "invoice_date", MentionText: "03/15/2024", Confidence: 0.91},
			// Below the acceptance threshold, must be dropped.
			{Type: "payment_terms", MentionText: "Net 15", Confidence: 0.4},
			{Type: "unknown_entity", MentionText: "x", Confidence: 0.99},
			{Type: "line_item", Confidence: 0.9, Properties: []docparse.Entity{
				{Type: "line_item/description", MentionText: "Widget", Confidence: 0.9},
				{Type: "line_item/quantity", MentionText: "3", Confidence: 0.9},
				{Type: "line_item/amount", MentionText: "1500.00", Confidence: 0.85},
			}},
		}},
	}}

	ext, err := NewDocParseExtractor(client).Extract(context.Background(), &document.Document{Path: "a.pdf"})
	require.NoError(t, err)

	rec := ext.Record
	assert.Equal(t, "INV-7", *rec.InvoiceNumber)
	assert.Equal(t, "Acme Corp", *rec.VendorName)
	assert.Equal(t, "Globex", *rec.BuyerName)
	assert.Equal(t, 1500.0, *rec.TotalAmount)
	assert.Equal(t, "2024-03-15", *rec.InvoiceDate)
	assert.Nil(t, rec.PaymentTerms)

	require.Len(t, rec.LineItems, 1)
	assert.Equal(t, "Widget", rec.LineItems[0].Description)
	assert.Equal(t, 3.0, *rec.LineItems[0].Quantity)
	assert.Equal(t, 1500.0, *rec.LineItems[0].Total)

	assert.InDelta(t, 95.0, ext.Confidence[model.FieldInvoiceNumber], 1e-9)
}

func TestDocParseExtractorServiceFailure(t *testing.T) {
	client := &fakeDocParseClient{err: eris.New("quota exceeded")}
	_, err := NewDocParseExtractor(client).Extract(context.Background(), &document.Document{Path: "a.pdf"})
	require.Error(t, err)
}

func TestDocParseExtractorBreakerTripsOnOutage(t *testing.T) {
	ex := NewDocParseExtractor(&fakeDocParseClient{err: &docparse.StatusError{StatusCode: 503, Body: "unavailable"}}).
		WithBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})

	doc := &document.Document{Path: "a.pdf"}
	for i := 0; i < 2; i++ {
		_, err := ex.Extract(context.Background(), doc)
		require.Error(t, err)
	}

	// The third call is rejected without reaching the service.
	_, err := ex.Extract(context.Background(), doc)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestDocParseExtractorRejectedDocumentDoesNotTrip(t *testing.T) {
	ex := NewDocParseExtractor(&fakeDocParseClient{err: &docparse.StatusError{StatusCode: 400, Body: "unsupported file"}}).
		WithBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})

	doc := &document.Document{Path: "a.pdf"}
	for i := 0; i < 5; i++ {
		_, err := ex.Extract(context.Background(), doc)
		require.Error(t, err)
		require.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
}

func TestAutoPrefersDocParse(t *testing.T) {
	dp := NewDocParseExtractor(&fakeDocParseClient{resp: &docparse.ProcessResponse{
		Document: docparse.ParsedDocument{Entities: []docparse.Entity{
			{Type: "invoice_id", MentionText: "INV-DP", Confidence: 0.95},
		}},
	}})
	gen := NewGenerativeExtractor(&fakeModelClient{resp: `{"invoice_number": "INV-GEN"}`}, "m", 1024, 0)

	runner := NewRunner(gen, dp)
	ext, err := runner.Run(context.Background(), &document.Document{Text: englishInvoice}, MethodAuto)
	require.NoError(t, err)
	assert.Equal(t, model.SourceDocParse, ext.Source)
	assert.Equal(t, "INV-DP", *ext.Record.InvoiceNumber)
}

func TestAutoFallsBackToGenerative(t *testing.T) {
	dp := NewDocParseExtractor(&fakeDocParseClient{err: eris.New("unavailable")})
	gen := NewGenerativeExtractor(&fakeModelClient{resp: `{"invoice_number": "INV-GEN"}`}, "m", 1024, 0)

	runner := NewRunner(gen, dp)
	ext, err := runner.Run(context.Background(), &document.Document{Text: englishInvoice}, MethodAuto)
	require.NoError(t, err)
	assert.Equal(t, model.SourceGenerative, ext.Source)
	assert.Equal(t, "INV-GEN", *ext.Record.InvoiceNumber)
}

func TestAutoFallsBackToLayoutAndRegex(t *testing.T) {
	gen := NewGenerativeExtractor(&fakeModelClient{err: eris.New("timeout")}, "m", 1024, 0)

	runner := NewRunner(gen, nil)
	ext, err := runner.Run(context.Background(), &document.Document{Text: englishInvoice}, MethodAuto)
	require.NoError(t, err)
	assert.Equal(t, model.SourceLayout, ext.Source)
	// Regex still contributes fields layout alone cannot produce.
	assert.Equal(t, "USD", *ext.Record.Currency)
	assert.Equal(t, "INV-2024-001", *ext.Record.InvoiceNumber)
	assert.Equal(t, 55.0, *ext.Record.TotalAmount)
}

func TestRunSpecificStrategyPropagatesFailure(t *testing.T) {
	gen := NewGenerativeExtractor(&fakeModelClient{err: eris.New("timeout")}, "m", 1024, 0)
	runner := NewRunner(gen, nil)

	_, err := runner.Run(context.Background(), &document.Document{Text: "x"}, MethodGenerative)
	require.Error(t, err)

	_, err = runner.Run(context.Background(), &document.Document{Text: "x"}, MethodDocParse)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestAllRunsConfiguredExtractors(t *testing.T) {
	gen := NewGenerativeExtractor(&fakeModelClient{resp: `{"vendor_name": "Acme"}`}, "m", 1024, 0)
	runner := NewRunner(gen, nil)

	results := runner.All(context.Background(), &document.Document{Text: englishInvoice})
	sources := map[string]bool{}
	for _, ext := range results {
		sources[ext.Source] = true
	}
	assert.True(t, sources[model.SourceRegex])
	assert.True(t, sources[model.SourceLayout])
	assert.True(t, sources[model.SourceGenerative])
}

func TestAllToleratesStrategyFailure(t *testing.T) {
	gen := NewGenerativeExtractor(&fakeModelClient{err: eris.New("down")}, "m", 1024, 0)
	runner := NewRunner(gen, nil)

	results := runner.All(context.Background(), &document.Document{Text: englishInvoice})
	assert.Len(t, results, 2)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodAuto, m)

	m, err = ParseMethod("layout")
	require.NoError(t, err)
	assert.Equal(t, MethodLayout, m)

	_, err = ParseMethod("psychic")
	require.Error(t, err)
}
