package extract

import "regexp"

// Label and value patterns shared by the regex and layout extractors. Every
// field carries English and German variants; the first match wins.

var invoiceNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Invoice\s+Number\s*:?\s*([A-Z0-9\-]+)`),
	regexp.MustCompile(`(?i)Invoice\s*#?\s*:?\s*([A-Z0-9\-]+)`),
	regexp.MustCompile(`(?i)INV[-#]?(\d+)`),
	regexp.MustCompile(`#\s*(\d{4,})`),
	regexp.MustCompile(`(?i)Rechnungsnummer\s*:?\s*([A-Z0-9\-]+)`),
	regexp.MustCompile(`(?i)Rechnungs-Nr\.?\s*:?\s*([A-Z0-9\-]+)`),
	regexp.MustCompile(`(?i)Rechnung\s*(?:Nr|Nummer|#)?\s*\.?:?\s*([A-Z0-9\-]+)`),
}

var buyerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Bill\s+To\s*:?\s*\n\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Buyer\s*:?\s*\n\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Customer\s*:?\s*\n\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Kunde\s*:?\s*\n\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Käufer\s*:?\s*\n\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Rechnungsempfänger\s*:?\s*\n\s*([^\n]+)`),
	regexp.MustCompile(`(?i)An\s*:?\s*\n\s*([^\n]+)`),
}

var buyerAddressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Bill\s+To\s*:?\s*\n((?:[^\n]+\n){1,4})`),
	regexp.MustCompile(`(?i)Kunde\s*:?\s*\n((?:[^\n]+\n){1,4})`),
	regexp.MustCompile(`(?i)Rechnungsempfänger\s*:?\s*\n((?:[^\n]+\n){1,4})`),
}

var invoiceDateLabels = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Invoice\s+Date\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Date\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Issued\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Rechnungsdatum\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Ausstellungsdatum\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Datum\s*:?\s*([^\n]+)`),
}

var dueDateLabels = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Due\s+Date\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Payment\s+Due\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Fälligkeitsdatum\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Fällig\s+am\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Zahlungsziel\s*:?\s*([^\n]+)`),
}

// dateTokenPatterns pick the date substring out of a labeled line.
var dateTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
	regexp.MustCompile(`\d{2}-\d{2}-\d{4}`),
	regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{4}`),
	regexp.MustCompile(`(?i)\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{4}`),
	regexp.MustCompile(`(?i)\d{1,2}\.?\s+(?:Januar|Februar|März|April|Mai|Juni|Juli|August|September|Oktober|November|Dezember)\s+\d{4}`),
}

var totalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Total\s+Amount\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Amount\s+Due\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Grand\s+Total\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)\bTotal\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Gesamtbetrag\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Gesamtsumme\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Endbetrag\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)\bSumme\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
}

var subtotalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Subtotal\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Sub\s+Total\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Zwischensumme\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
}

var taxPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bTax\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)VAT\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)GST\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)MwSt\.?\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Mehrwertsteuer\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)Umsatzsteuer\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)\bUSt\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
	regexp.MustCompile(`(?i)\bSteuer\s*:?\s*[$€£₹]?\s*([\d][\d.,]*)`),
}

var paymentTermsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Payment\s+Terms\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Zahlungsbedingungen\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Zahlbar\s+bis\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)Zahlungsziel\s*:?\s*([^\n]+)`),
	regexp.MustCompile(`(?i)(Net\s+\d+)`),
	regexp.MustCompile(`(?i)Terms\s*:?\s*([^\n]+)`),
}

// currencyHints map a symbol or code occurrence to an ISO code, checked in
// order so explicit codes win over bare symbols.
var currencyHints = []struct {
	pattern *regexp.Regexp
	code    string
}{
	{regexp.MustCompile(`USD`), "USD"},
	{regexp.MustCompile(`EUR`), "EUR"},
	{regexp.MustCompile(`GBP`), "GBP"},
	{regexp.MustCompile(`INR`), "INR"},
	{regexp.MustCompile(`\$`), "USD"},
	{regexp.MustCompile(`€`), "EUR"},
	{regexp.MustCompile(`£`), "GBP"},
	{regexp.MustCompile(`₹`), "INR"},
}

var lineItemHeaderCols = regexp.MustCompile(`(?i)description|item|product|service|beschreibung|artikel|position|posten`)
var lineItemHeaderNums = regexp.MustCompile(`(?i)qty|quantity|price|amount|total|menge|preis|betrag|summe`)
var lineItemEnd = regexp.MustCompile(`(?i)subtotal|total|tax|payment|zwischensumme|gesamt|steuer|zahlung`)
var lineItemNumber = regexp.MustCompile(`[\d][\d.,]*`)
var lineItemDescription = regexp.MustCompile(`^([A-Za-zÄÖÜäöüß\s()\.\-]+)`)

// firstMatch returns the first capture group of the first pattern that
// matches, or "" when none do.
func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// firstDateToken finds the label line for a date field, then picks the date
// token out of it.
func firstDateToken(labels []*regexp.Regexp, text string) string {
	for _, label := range labels {
		m := label.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		for _, tok := range dateTokenPatterns {
			if d := tok.FindString(m[1]); d != "" {
				return d
			}
		}
	}
	return ""
}
