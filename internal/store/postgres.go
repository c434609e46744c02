package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/db"
	"github.com/sells-group/invoice-cli/internal/model"
)

// PoolConfig tunes the Postgres connection pool.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements are registered on every new connection so the hot-path
// queries skip the parse step.
var preparedStatements = map[string]string{
	"get_invoice": `SELECT id, invoice_number, record, validation, verification,
		quality_score, is_valid, score, file_id, created_at, updated_at
		FROM invoices WHERE id = $1`,
	"get_file": `SELECT id, name, data, created_at FROM files WHERE id = $1`,
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and verifies the connection.
func NewPostgres(ctx context.Context, dsn string, cfg PoolConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	invoice_number TEXT,
	record         JSONB NOT NULL,
	validation     JSONB,
	verification   JSONB,
	quality_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_valid       BOOLEAN NOT NULL DEFAULT FALSE,
	score          INTEGER NOT NULL DEFAULT 0,
	file_id        TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS files (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invoices_number ON invoices(invoice_number);
CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	saved := prepareInvoice(inv)
	recordJSON, validationJSON, verificationJSON, err := marshalInvoice(saved)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO invoices (id, invoice_number, record, validation, verification,
		 quality_score, is_valid, score, file_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		saved.ID, saved.InvoiceNumber, recordJSON, validationJSON, verificationJSON,
		saved.QualityScore, saved.IsValid, saved.Score, nullable(saved.FileID),
		saved.CreatedAt, saved.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert invoice")
	}
	return saved, nil
}

var invoiceColumns = []string{
	"id", "invoice_number", "record", "validation", "verification",
	"quality_score", "is_valid", "score", "file_id", "created_at", "updated_at",
}

// SaveInvoices bulk-upserts a batch through a temp table and COPY, re-running
// a batch over the same documents updates rows in place.
func (s *PostgresStore) SaveInvoices(ctx context.Context, invs []*Invoice) (int64, error) {
	rows := make([][]any, 0, len(invs))
	for _, inv := range invs {
		saved := prepareInvoice(inv)
		recordJSON, validationJSON, verificationJSON, err := marshalInvoice(saved)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			saved.ID, saved.InvoiceNumber, recordJSON, validationJSON, verificationJSON,
			saved.QualityScore, saved.IsValid, saved.Score, nullable(saved.FileID),
			saved.CreatedAt, saved.UpdatedAt,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "invoices",
		Columns:      invoiceColumns,
		ConflictKeys: []string{"id"},
	}, rows)
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, "get_invoice", id)
	return scanPgInvoice(row)
}

func (s *PostgresStore) ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, invoice_number, record, validation, verification,
		 quality_score, is_valid, score, file_id, created_at, updated_at
		 FROM invoices ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list invoices")
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanPgInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, eris.Wrap(rows.Err(), "postgres: list invoices iterate")
}

func (s *PostgresStore) DeleteInvoice(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete invoice %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("invoice not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveFile(ctx context.Context, name string, data []byte) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO files (id, name, data, created_at) VALUES ($1, $2, $3, $4)`,
		id, name, data, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert file")
	}
	return id, nil
}

func (s *PostgresStore) GetFile(ctx context.Context, id string) (*StoredFile, error) {
	row := s.pool.QueryRow(ctx, "get_file", id)

	var f StoredFile
	err := row.Scan(&f.ID, &f.Name, &f.Data, &f.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("file not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get file")
	}
	return &f, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_valid), COALESCE(AVG(score), 0) FROM invoices`)

	var st Stats
	if err := row.Scan(&st.Total, &st.Valid, &st.AverageScore); err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}

// prepareInvoice copies the input and fills identity and denormalized columns.
func prepareInvoice(inv *Invoice) *Invoice {
	saved := *inv
	saved.ID = uuid.New().String()
	now := time.Now().UTC()
	saved.CreatedAt = now
	saved.UpdatedAt = now
	if saved.Record.InvoiceNumber != nil {
		saved.InvoiceNumber = *saved.Record.InvoiceNumber
	}
	if saved.Validation != nil {
		saved.IsValid = saved.Validation.IsValid
		saved.Score = saved.Validation.Score
	}
	return &saved
}

func scanPgInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var recordJSON []byte
	var validationJSON, verificationJSON []byte
	var fileID *string

	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &recordJSON, &validationJSON, &verificationJSON,
		&inv.QualityScore, &inv.IsValid, &inv.Score, &fileID, &inv.CreatedAt, &inv.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.New("invoice not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan invoice")
	}

	if fileID != nil {
		inv.FileID = *fileID
	}
	if err := json.Unmarshal(recordJSON, &inv.Record); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	if len(validationJSON) > 0 {
		inv.Validation = &model.ValidationResult{}
		if err := json.Unmarshal(validationJSON, inv.Validation); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal validation")
		}
	}
	if len(verificationJSON) > 0 {
		inv.Verification = &model.VerificationResult{}
		if err := json.Unmarshal(verificationJSON, inv.Verification); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal verification")
		}
	}
	return &inv, nil
}
