// Package normalize provides shared canonicalization routines for extracted
// invoice fields. All functions are total: they never fail on odd input, they
// just report that no canonical form could be produced.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// dateFormats are tried in order; the first successful parse wins. US month
// first format precedes the EU day first one, matching the source documents
// this pipeline sees most.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2.1.2006",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"02-Jan-2006",
	"02/Jan/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// Date converts a raw date string to ISO YYYY-MM-DD. Already-canonical input
// passes through unchanged. When no known format matches, the raw string is
// returned as-is: the value is "present but possibly invalid" and the
// validator's format check flags it.
func Date(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if isoDate.MatchString(s) {
		return s
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

var currencyRunes = "$€£₹¥₨"

// Amount parses a raw monetary string into a decimal value. Currency symbols
// and whitespace are stripped. When both "," and "." appear, the separator
// occurring last is the decimal point and the other is a grouping separator,
// which covers both 1,234.56 and 1.234,56. A lone comma followed by exactly
// three digits is treated as a grouping separator. Returns ok=false when
// non-numeric residue remains.
func Amount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			// skip
		case strings.ContainsRune(currencyRunes, r):
			// skip
		default:
			return 0, false
		}
	}
	s = b.String()
	if s == "" || s == "-" {
		return 0, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// European grouping: 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// US grouping: 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if groupedByComma(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			// Single comma acting as a decimal point: 1234,56
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		// Dot-grouped integer: 1.234.567
		last := lastDot
		s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// groupedByComma reports whether every comma in s starts a three-digit group,
// i.e. the commas are thousands separators.
func groupedByComma(s string) bool {
	parts := strings.Split(s, ",")
	if strings.Contains(parts[0], ".") {
		return false
	}
	for _, p := range parts[1:] {
		digits := p
		if i := strings.Index(p, "."); i >= 0 {
			digits = p[:i]
		}
		if len(digits) != 3 {
			return false
		}
	}
	return true
}

var multiSpace = regexp.MustCompile(`\s+`)

// Identifier trims and collapses internal whitespace. Returns ok=false for
// blank input.
func Identifier(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	return multiSpace.ReplaceAllString(s, " "), true
}
