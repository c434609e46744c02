// Package document loads PDF invoices into a form the extractors share: the
// full plain text plus positioned words for layout-aware extraction.
package document

import "strings"

// Word is a positioned token on a page. Coordinates are PDF points with the
// origin at the bottom-left corner, so a larger Y means higher on the page.
type Word struct {
	Text string  `json:"text"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	Page int     `json:"page"`
}

// Document is a loaded invoice file.
type Document struct {
	Path      string `json:"path"`
	Text      string `json:"text"`
	Words     []Word `json:"words,omitempty"`
	PageCount int    `json:"page_count"`

	// Scanned marks documents whose embedded text layer was absent or
	// trivially small, forcing the OCR fallback. Word positions are not
	// available for those.
	Scanned bool `json:"scanned"`
}

// Lines splits the document text into trimmed lines, dropping blanks.
func (d *Document) Lines() []string {
	raw := strings.Split(d.Text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}

// PageWords returns the words on the given 1-based page, in document order.
func (d *Document) PageWords(page int) []Word {
	var out []Word
	for _, w := range d.Words {
		if w.Page == page {
			out = append(out, w)
		}
	}
	return out
}
