package document

import (
	"context"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// minTextChars is the smallest embedded text layer we trust. Anything below
// this is treated as a scanned document and routed through OCR.
const minTextChars = 50

// wordGapFactor is the fraction of the font size beyond which adjacent
// characters belong to different words.
const wordGapFactor = 0.3

// rowTolerance is the Y distance in points within which characters count as
// being on the same line.
const rowTolerance = 3.0

// TextExtractor produces plain text for documents without a usable embedded
// text layer. Satisfied by the ocr package extractors.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Loader reads PDFs into Documents, falling back to OCR for scanned files.
type Loader struct {
	ocr TextExtractor
}

// NewLoader creates a Loader. The OCR extractor may be nil, in which case
// scanned documents load with empty text and Scanned set.
func NewLoader(ocr TextExtractor) *Loader {
	return &Loader{ocr: ocr}
}

// Load parses the PDF at path. The embedded text layer is preferred; when it
// holds fewer than minTextChars characters the document is considered scanned
// and the OCR extractor supplies the text instead.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	doc, err := readPDF(path)
	if err != nil {
		return nil, eris.Wrapf(err, "document: read %s", path)
	}

	if len(strings.TrimSpace(doc.Text)) >= minTextChars {
		return doc, nil
	}

	doc.Scanned = true
	doc.Words = nil
	if l.ocr == nil {
		zap.L().Warn("scanned document and no OCR extractor configured",
			zap.String("path", path))
		return doc, nil
	}

	zap.L().Debug("embedded text layer too small, running OCR",
		zap.String("path", path),
		zap.Int("chars", len(strings.TrimSpace(doc.Text))))

	text, err := l.ocr.ExtractText(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "document: ocr %s", path)
	}
	doc.Text = text
	return doc, nil
}

// readPDF extracts the embedded text layer and positioned words.
func readPDF(path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc := &Document{Path: path, PageCount: r.NumPage()}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err == nil {
			for _, row := range rows {
				for j, t := range row.Content {
					if j > 0 {
						text.WriteString(" ")
					}
					text.WriteString(t.S)
				}
				text.WriteString("\n")
			}
		}

		doc.Words = append(doc.Words, pageToWords(page, i)...)
	}

	doc.Text = text.String()
	return doc, nil
}

// pageToWords groups the page's characters into words: characters on the same
// row whose horizontal gap stays under wordGapFactor of the font size merge.
func pageToWords(page pdf.Page, pageNum int) []Word {
	content := page.Content()
	chars := make([]pdf.Text, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) != "" {
			chars = append(chars, t)
		}
	}
	if len(chars) == 0 {
		return nil
	}

	// Top-to-bottom, then left-to-right. Y grows upward in PDF space.
	sort.SliceStable(chars, func(i, j int) bool {
		if diff := chars[i].Y - chars[j].Y; diff > rowTolerance || diff < -rowTolerance {
			return chars[i].Y > chars[j].Y
		}
		return chars[i].X < chars[j].X
	})

	var words []Word
	var cur *Word
	for _, c := range chars {
		gapLimit := wordGapFactor * c.FontSize
		if gapLimit == 0 {
			gapLimit = 3.0
		}

		sameRow := cur != nil && abs(cur.Y0-c.Y) <= rowTolerance
		if sameRow && c.X-cur.X1 <= gapLimit {
			cur.Text += c.S
			cur.X1 = c.X + c.W
			if top := c.Y + c.FontSize; top > cur.Y1 {
				cur.Y1 = top
			}
			continue
		}

		if cur != nil {
			words = append(words, *cur)
		}
		cur = &Word{
			Text: c.S,
			X0:   c.X,
			Y0:   c.Y,
			X1:   c.X + c.W,
			Y1:   c.Y + c.FontSize,
			Page: pageNum,
		}
	}
	if cur != nil {
		words = append(words, *cur)
	}
	return words
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
