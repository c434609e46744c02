package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/normalize"
)

// Pattern matches carry no positional signal, so regex confidence sits in a
// fixed low-to-medium band regardless of match quality.
const (
	regexConfidence         = 60.0
	regexFallbackConfidence = 50.0
)

// RegexExtractor extracts fields by applying ordered English and German label
// patterns to the document text. First match wins per field.
type RegexExtractor struct{}

// NewRegexExtractor creates a RegexExtractor.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

func (e *RegexExtractor) Name() string { return model.SourceRegex }

func (e *RegexExtractor) Extract(_ context.Context, doc *document.Document) (*model.Extraction, error) {
	ext := &model.Extraction{
		Source:     model.SourceRegex,
		Confidence: map[string]float64{},
	}
	text := doc.Text

	set := func(field string, value any, conf float64) {
		ext.Record.SetField(field, value)
		ext.Confidence[field] = conf
	}

	if v, ok := normalize.Identifier(firstMatch(invoiceNumberPatterns, text)); ok {
		set(model.FieldInvoiceNumber, v, regexConfidence)
	}
	if v := firstNonKeywordLine(doc.Lines()); v != "" {
		set(model.FieldVendorName, v, regexFallbackConfidence)
	}
	if v, ok := normalize.Identifier(firstMatch(buyerPatterns, text)); ok {
		set(model.FieldBuyerName, v, regexConfidence)
	}
	if v := vendorAddressFromText(text); v != "" {
		set(model.FieldVendorAddress, v, regexFallbackConfidence)
	}
	if v, ok := normalize.Identifier(firstMatch(buyerAddressPatterns, text)); ok {
		set(model.FieldBuyerAddress, v, regexFallbackConfidence)
	}
	if raw := firstDateToken(invoiceDateLabels, text); raw != "" {
		set(model.FieldInvoiceDate, normalize.Date(raw), regexConfidence)
	}
	if raw := firstDateToken(dueDateLabels, text); raw != "" {
		set(model.FieldDueDate, normalize.Date(raw), regexConfidence)
	}

	if code, matched := detectCurrency(text); code != "" {
		conf := regexConfidence
		if !matched {
			conf = regexFallbackConfidence
		}
		set(model.FieldCurrency, code, conf)
	}

	if v, ok := firstAmount(totalPatterns, text); ok {
		set(model.FieldTotalAmount, v, regexConfidence)
	}
	if v, ok := firstAmount(subtotalPatterns, text); ok {
		set(model.FieldSubtotal, v, regexConfidence)
	}
	if v, ok := firstAmount(taxPatterns, text); ok {
		set(model.FieldTaxAmount, v, regexConfidence)
	}
	if v, ok := normalize.Identifier(firstMatch(paymentTermsPatterns, text)); ok {
		set(model.FieldPaymentTerms, v, regexFallbackConfidence)
	}
	if items := parseLineItems(text); len(items) > 0 {
		ext.Record.LineItems = items
		ext.Confidence[model.FieldLineItems] = regexFallbackConfidence
	}

	return ext, nil
}

// firstNonKeywordLine picks the vendor name as the first early line that is
// not a structural keyword. Invoices put the issuing party at the top.
func firstNonKeywordLine(lines []string) string {
	keywords := []string{"invoice", "date", "bill to", "ship to", "rechnung", "datum", "kunde"}
	limit := len(lines)
	if limit > 10 {
		limit = 10
	}
	for _, line := range lines[:limit] {
		lower := strings.ToLower(line)
		skip := false
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				skip = true
				break
			}
		}
		if !skip && len(line) > 2 && len(line) < 100 {
			return line
		}
	}
	return ""
}

var addressStreet = regexp.MustCompile(`(?i)\d+.*(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|way|straße|strasse|weg|platz|allee)`)
var addressZip = regexp.MustCompile(`\d{5}(?:-\d{4})?`)

// vendorAddressFromText scans the top of the document for street and postal
// code lines.
func vendorAddressFromText(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 15 {
		lines = lines[:15]
	}

	var parts []string
	for _, line := range lines {
		switch {
		case addressStreet.MatchString(line):
			parts = append(parts, strings.TrimSpace(line))
		case addressZip.MatchString(line):
			parts = append(parts, strings.TrimSpace(line))
			return strings.Join(parts, " ")
		}
	}
	return strings.Join(parts, " ")
}

// detectCurrency returns the ISO code for the first currency hint in the
// text. German invoices frequently omit the code entirely, so EUR is the
// default; matched reports whether an explicit hint was found.
func detectCurrency(text string) (code string, matched bool) {
	for _, h := range currencyHints {
		if h.pattern.MatchString(text) {
			return h.code, true
		}
	}
	return "EUR", false
}

func firstAmount(patterns []*regexp.Regexp, text string) (float64, bool) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); len(m) > 1 {
			if v, ok := normalize.Amount(m[1]); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// parseLineItems walks the item table between its header row and the totals
// block, reading a description plus two or three numeric columns per row.
func parseLineItems(text string) []model.LineItem {
	var items []model.LineItem
	inSection := false

	for _, line := range strings.Split(text, "\n") {
		if !inSection {
			if lineItemHeaderCols.MatchString(line) && lineItemHeaderNums.MatchString(line) {
				inSection = true
			}
			continue
		}
		if lineItemEnd.MatchString(line) {
			break
		}

		numbers := lineItemNumber.FindAllString(line, -1)
		if len(numbers) < 2 {
			continue
		}
		descMatch := lineItemDescription.FindStringSubmatch(line)
		if len(descMatch) < 2 {
			continue
		}
		desc := strings.TrimSpace(descMatch[1])
		if desc == "" {
			continue
		}

		vals := make([]float64, 0, len(numbers))
		ok := true
		for _, n := range numbers {
			v, parsed := normalize.Amount(n)
			if !parsed {
				ok = false
				break
			}
			vals = append(vals, v)
		}
		if !ok {
			continue
		}

		item := model.LineItem{Description: desc}
		if len(vals) >= 3 {
			item.Quantity = model.Num(vals[0])
			item.UnitPrice = model.Num(vals[1])
			item.Total = model.Num(vals[2])
		} else {
			item.Quantity = model.Num(vals[0])
			item.Total = model.Num(vals[1])
		}
		items = append(items, item)
	}

	return items
}
