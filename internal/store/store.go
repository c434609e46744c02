// Package store persists processed invoices and their source files behind a
// driver-neutral interface, with SQLite and Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Invoice is one stored processing outcome.
type Invoice struct {
	ID            string                    `json:"id"`
	InvoiceNumber string                    `json:"invoice_number,omitempty"`
	Record        model.InvoiceRecord       `json:"record"`
	Validation    *model.ValidationResult   `json:"validation,omitempty"`
	Verification  *model.VerificationResult `json:"verification,omitempty"`
	QualityScore  float64                   `json:"quality_score"`
	IsValid       bool                      `json:"is_valid"`
	Score         int                       `json:"score"`
	FileID        string                    `json:"file_id,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// StoredFile is a raw source document blob.
type StoredFile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the stored corpus for the dashboard surface.
type Stats struct {
	Total        int     `json:"total"`
	Valid        int     `json:"valid"`
	AverageScore float64 `json:"average_score"`
}

// Store is the persistence boundary. The pipeline never touches it; only the
// CLI and HTTP layers do.
type Store interface {
	SaveInvoice(ctx context.Context, inv *Invoice) (*Invoice, error)
	SaveInvoices(ctx context.Context, invs []*Invoice) (int64, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error

	SaveFile(ctx context.Context, name string, data []byte) (string, error)
	GetFile(ctx context.Context, id string) (*StoredFile, error)

	Stats(ctx context.Context) (*Stats, error)

	Migrate(ctx context.Context) error
	Close() error
}
