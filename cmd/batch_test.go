package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/extract"
	"github.com/sells-group/invoice-cli/internal/merge"
	"github.com/sells-group/invoice-cli/internal/pipeline"
)

const retryInvoiceText = `Acme Corporation

Invoice Number: INV-2024-001
Invoice Date: 2024-03-15
Due Date: 2024-04-14

Bill To:
Globex LLC

Subtotal: $50.00
Tax: $5.00
Total: $55.00
`

// timeoutLoader fails every load with a fresh transient error.
type timeoutLoader struct {
	calls int
}

func (l *timeoutLoader) Load(_ context.Context, _ string) (*document.Document, error) {
	l.calls++
	return nil, fmt.Errorf("load attempt %d: i/o timeout", l.calls)
}

// textOnlyLoader serves the same text for every path.
type textOnlyLoader struct {
	text  string
	calls int
}

func (l *textOnlyLoader) Load(_ context.Context, path string) (*document.Document, error) {
	l.calls++
	return &document.Document{Path: path, Text: l.text, PageCount: 1}, nil
}

func retryTestProcessor(loader pipeline.DocumentLoader) *pipeline.Processor {
	return pipeline.New(loader, extract.NewRunner(nil, nil), merge.New(merge.DefaultThresholds()), nil)
}

func TestRetryFailuresReportsLatestError(t *testing.T) {
	loader := &timeoutLoader{}
	p := retryTestProcessor(loader)

	results := []*pipeline.ProcessResult{{Path: "a.pdf", Error: "first pass: i/o timeout"}}
	out := retryFailures(context.Background(), p, results, pipeline.Options{Method: extract.MethodRegex})

	require.Len(t, out, 1)
	assert.Equal(t, batchRetries, loader.calls)
	assert.Contains(t, out[0].Error, fmt.Sprintf("load attempt %d", batchRetries))
	assert.NotContains(t, out[0].Error, "first pass")
}

func TestRetryFailuresRecovers(t *testing.T) {
	loader := &textOnlyLoader{text: retryInvoiceText}
	p := retryTestProcessor(loader)

	results := []*pipeline.ProcessResult{
		{Path: "a.pdf", Error: "model call: connection reset by peer"},
		{Path: "b.pdf", Error: "document: malformed xref table"},
	}
	out := retryFailures(context.Background(), p, results, pipeline.Options{Method: extract.MethodRegex})

	assert.Empty(t, out[0].Error)
	require.NotNil(t, out[0].Merge)
	assert.Equal(t, "INV-2024-001", *out[0].Merge.Record.InvoiceNumber)

	// Permanent failures are left alone.
	assert.Equal(t, "document: malformed xref table", out[1].Error)
	assert.Equal(t, 1, loader.calls)
}
