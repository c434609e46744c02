package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/normalize"
)

// Layout confidences sit above pure regex because word position carries
// signal about what a string is, not just what it looks like.
const (
	layoutVendorConfidence = 85.0
	layoutBuyerConfidence  = 80.0
	layoutInvNumConfidence = 90.0
	layoutDateConfidence   = 85.0
	layoutTotalConfidence  = 90.0
	layoutAmountConfidence = 85.0
)

// vendorRegionHeight is how far below the top of page 1 the vendor name is
// expected, in points.
const vendorRegionHeight = 150.0

// buyerLabels are scanned in order when locating the buyer block.
var buyerLabels = []string{
	"Bill To", "Ship To", "Sold To", "Customer", "Buyer",
	"Kunde", "Käufer", "Rechnungsempfänger", "An",
}

// LayoutExtractor combines word-position heuristics with the reliable label
// patterns: the vendor is the first substantial block in the top region of
// page 1, the buyer is read from the neighborhood of a label keyword.
type LayoutExtractor struct{}

// NewLayoutExtractor creates a LayoutExtractor.
func NewLayoutExtractor() *LayoutExtractor {
	return &LayoutExtractor{}
}

func (e *LayoutExtractor) Name() string { return model.SourceLayout }

func (e *LayoutExtractor) Extract(_ context.Context, doc *document.Document) (*model.Extraction, error) {
	ext := &model.Extraction{
		Source:     model.SourceLayout,
		Confidence: map[string]float64{},
	}
	if len(doc.Words) == 0 {
		ext.Notes = append(ext.Notes, "no word positions available")
	}
	text := doc.Text

	set := func(field string, value any, conf float64) {
		ext.Record.SetField(field, value)
		ext.Confidence[field] = conf
	}

	if v := vendorFromTopRegion(doc); v != "" {
		set(model.FieldVendorName, v, layoutVendorConfidence)
	}
	if v := buyerNearLabel(text); v != "" {
		set(model.FieldBuyerName, v, layoutBuyerConfidence)
	}

	if raw := firstMatch(invoiceNumberPatterns, text); len(raw) >= 3 {
		set(model.FieldInvoiceNumber, raw, layoutInvNumConfidence)
	}
	if raw := firstDateToken(invoiceDateLabels, text); raw != "" {
		set(model.FieldInvoiceDate, normalize.Date(raw), layoutDateConfidence)
	}
	if raw := firstDateToken(dueDateLabels, text); raw != "" {
		set(model.FieldDueDate, normalize.Date(raw), layoutDateConfidence)
	}
	if v, ok := firstAmount(totalPatterns, text); ok {
		set(model.FieldTotalAmount, v, layoutTotalConfidence)
	}
	if v, ok := firstAmount(subtotalPatterns, text); ok {
		set(model.FieldSubtotal, v, layoutAmountConfidence)
	}
	if v, ok := firstAmount(taxPatterns, text); ok {
		set(model.FieldTaxAmount, v, layoutAmountConfidence)
	}

	return ext, nil
}

// vendorFromTopRegion finds the first substantial line of words in the top
// region of page 1. Words on the same row merge into one candidate so
// multi-word company names survive.
func vendorFromTopRegion(doc *document.Document) string {
	words := doc.PageWords(1)
	if len(words) == 0 {
		return ""
	}

	// The region spans vendorRegionHeight points down from the page's
	// highest word. Y grows upward.
	top := words[0].Y1
	for _, w := range words {
		if w.Y1 > top {
			top = w.Y1
		}
	}

	keywords := []string{"invoice", "bill", "date", "rechnung", "datum"}

	var line []string
	var lineY float64
	flush := func() string {
		candidate := strings.TrimSpace(strings.Join(line, " "))
		line = nil
		if len(candidate) <= 3 {
			return ""
		}
		lower := strings.ToLower(candidate)
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				return ""
			}
		}
		return candidate
	}

	for _, w := range words {
		if w.Y1 < top-vendorRegionHeight {
			break
		}
		if len(line) > 0 && abs(w.Y0-lineY) > 3.0 {
			if v := flush(); v != "" {
				return v
			}
		}
		line = append(line, w.Text)
		lineY = w.Y0
	}
	return flush()
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// buyerLabelPatterns anchor each label to a line start so short labels like
// "An" cannot match inside other words. The value is whatever follows on the
// label's line, or the next line when the label stands alone.
var buyerLabelPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(buyerLabels))
	for i, label := range buyerLabels {
		out[i] = regexp.MustCompile(`(?i)(?:^|\n)\s*` + regexp.QuoteMeta(label) + `\s*:?[ \t]*\n?[ \t]*([^\n]+)`)
	}
	return out
}()

// buyerNearLabel reads the text in the neighborhood of a buyer label keyword.
func buyerNearLabel(text string) string {
	for _, p := range buyerLabelPatterns {
		if m := p.FindStringSubmatch(text); len(m) > 1 {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}
