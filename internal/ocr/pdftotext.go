package ocr

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text by shelling out to poppler's pdftotext binary.
// It is the zero-credential default for scanned documents.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. An empty binPath resolves
// "pdftotext" from PATH.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText converts the PDF to text on stdout. The -layout flag keeps
// columns aligned so the layout extractor's label heuristics still work, and
// UTF-8 output preserves umlauts in German invoices.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", pdfPath, "-")

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s",
				pdfPath, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s", pdfPath)
	}

	return string(out), nil
}
