package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleStoredInvoice(number string, score int, valid bool) *Invoice {
	rec := model.InvoiceRecord{}
	rec.InvoiceNumber = &number
	total := 110.0
	rec.TotalAmount = &total
	return &Invoice{
		Record: rec,
		Validation: &model.ValidationResult{
			InvoiceNumber: number,
			IsValid:       valid,
			Score:         score,
		},
		QualityScore: 92.5,
	}
}

func TestSQLiteSaveAndGetInvoice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveInvoice(ctx, sampleStoredInvoice("INV-2024-001", 95, true))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "INV-2024-001", saved.InvoiceNumber)
	assert.True(t, saved.IsValid)
	assert.Equal(t, 95, saved.Score)

	got, err := s.GetInvoice(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "INV-2024-001", *got.Record.InvoiceNumber)
	assert.Equal(t, 110.0, *got.Record.TotalAmount)
	require.NotNil(t, got.Validation)
	assert.Equal(t, 95, got.Validation.Score)
	assert.Nil(t, got.Verification)
	assert.Equal(t, 92.5, got.QualityScore)
}

func TestSQLiteGetInvoiceNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetInvoice(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteListInvoices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, number := range []string{"INV-1", "INV-2", "INV-3"} {
		_, err := s.SaveInvoice(ctx, sampleStoredInvoice(number, 80, true))
		require.NoError(t, err)
	}

	invoices, err := s.ListInvoices(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	rest, err := s.ListInvoices(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestSQLiteDeleteInvoice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveInvoice(ctx, sampleStoredInvoice("INV-1", 90, true))
	require.NoError(t, err)

	require.NoError(t, s.DeleteInvoice(ctx, saved.ID))

	_, err = s.GetInvoice(ctx, saved.ID)
	require.Error(t, err)

	err = s.DeleteInvoice(ctx, saved.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteSaveInvoicesBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.SaveInvoices(ctx, []*Invoice{
		sampleStoredInvoice("INV-1", 90, true),
		sampleStoredInvoice("INV-2", 50, false),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	invoices, err := s.ListInvoices(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, invoices, 2)
}

func TestSQLiteSaveInvoicesRollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// JSON cannot encode +Inf, so the second row fails mid-batch.
	bad := sampleStoredInvoice("INV-2", 50, false)
	inf := math.Inf(1)
	bad.Record.TotalAmount = &inf

	_, err := s.SaveInvoices(ctx, []*Invoice{
		sampleStoredInvoice("INV-1", 90, true),
		bad,
	})
	require.Error(t, err)

	// The first row must not survive the failed batch.
	invoices, err := s.ListInvoices(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestSQLiteFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := []byte("%PDF-1.4 fake")
	id, err := s.SaveFile(ctx, "invoice.pdf", data)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	f, err := s.GetFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", f.Name)
	assert.Equal(t, data, f.Data)

	_, err = s.GetFile(ctx, "missing")
	require.Error(t, err)
}

func TestSQLiteStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)

	_, err = s.SaveInvoice(ctx, sampleStoredInvoice("INV-1", 100, true))
	require.NoError(t, err)
	_, err = s.SaveInvoice(ctx, sampleStoredInvoice("INV-2", 50, false))
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Valid)
	assert.InDelta(t, 75.0, stats.AverageScore, 0.001)
}
