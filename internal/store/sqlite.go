package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/invoice-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	invoice_number TEXT,
	record         TEXT NOT NULL,
	validation     TEXT,
	verification   TEXT,
	quality_score  REAL NOT NULL DEFAULT 0,
	is_valid       INTEGER NOT NULL DEFAULT 0,
	score          INTEGER NOT NULL DEFAULT 0,
	file_id        TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS files (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_invoices_number ON invoices(invoice_number);
CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteInsertInvoice = `INSERT INTO invoices (id, invoice_number, record, validation, verification,
	 quality_score, is_valid, score, file_id, created_at, updated_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) SaveInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	saved := prepareInvoice(inv)
	recordJSON, validationJSON, verificationJSON, err := marshalInvoice(saved)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, sqliteInsertInvoice,
		saved.ID, saved.InvoiceNumber, recordJSON, validationJSON, verificationJSON,
		saved.QualityScore, boolToInt(saved.IsValid), saved.Score, nullable(saved.FileID),
		saved.CreatedAt, saved.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert invoice")
	}
	return saved, nil
}

// SaveInvoices writes the whole batch in one transaction. SQLite has no COPY
// protocol, so rows go in one by one; the transaction keeps the batch
// all-or-nothing, matching the Postgres driver.
func (s *SQLiteStore) SaveInvoices(ctx context.Context, invs []*Invoice) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, inv := range invs {
		saved := prepareInvoice(inv)
		recordJSON, validationJSON, verificationJSON, err := marshalInvoice(saved)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, sqliteInsertInvoice,
			saved.ID, saved.InvoiceNumber, recordJSON, validationJSON, verificationJSON,
			saved.QualityScore, boolToInt(saved.IsValid), saved.Score, nullable(saved.FileID),
			saved.CreatedAt, saved.UpdatedAt,
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert invoice")
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch")
	}
	return n, nil
}

func (s *SQLiteStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, invoice_number, record, validation, verification,
		 quality_score, is_valid, score, file_id, created_at, updated_at
		 FROM invoices WHERE id = ?`,
		id,
	)
	return scanInvoice(row)
}

func (s *SQLiteStore) ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invoice_number, record, validation, verification,
		 quality_score, is_valid, score, file_id, created_at, updated_at
		 FROM invoices ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list invoices")
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, eris.Wrap(rows.Err(), "sqlite: list invoices iterate")
}

func (s *SQLiteStore) DeleteInvoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete invoice %s", id)
	}
	return checkRowsAffected(res, "invoice", id)
}

func (s *SQLiteStore) SaveFile(ctx context.Context, name string, data []byte) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, name, data, created_at) VALUES (?, ?, ?, ?)`,
		id, name, data, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert file")
	}
	return id, nil
}

func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*StoredFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, data, created_at FROM files WHERE id = ?`, id)

	var f StoredFile
	err := row.Scan(&f.ID, &f.Name, &f.Data, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("file not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get file")
	}
	return &f, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_valid), 0), COALESCE(AVG(score), 0) FROM invoices`)

	var st Stats
	if err := row.Scan(&st.Total, &st.Valid, &st.AverageScore); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &st, nil
}

// helpers

func marshalInvoice(inv *Invoice) (record string, validation, verification sql.NullString, err error) {
	recordBytes, err := json.Marshal(inv.Record)
	if err != nil {
		return "", validation, verification, eris.Wrap(err, "store: marshal record")
	}
	record = string(recordBytes)

	if inv.Validation != nil {
		b, err := json.Marshal(inv.Validation)
		if err != nil {
			return "", validation, verification, eris.Wrap(err, "store: marshal validation")
		}
		validation = sql.NullString{String: string(b), Valid: true}
	}
	if inv.Verification != nil {
		b, err := json.Marshal(inv.Verification)
		if err != nil {
			return "", validation, verification, eris.Wrap(err, "store: marshal verification")
		}
		verification = sql.NullString{String: string(b), Valid: true}
	}
	return record, validation, verification, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInvoice(row scannable) (*Invoice, error) {
	var inv Invoice
	var recordJSON string
	var validationJSON, verificationJSON, fileID sql.NullString
	var isValid int

	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &recordJSON, &validationJSON, &verificationJSON,
		&inv.QualityScore, &isValid, &inv.Score, &fileID, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("invoice not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan invoice")
	}

	inv.IsValid = isValid != 0
	inv.FileID = fileID.String

	if err := json.Unmarshal([]byte(recordJSON), &inv.Record); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal record")
	}
	if validationJSON.Valid {
		inv.Validation = &model.ValidationResult{}
		if err := json.Unmarshal([]byte(validationJSON.String), inv.Validation); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal validation")
		}
	}
	if verificationJSON.Valid {
		inv.Verification = &model.VerificationResult{}
		if err := json.Unmarshal([]byte(verificationJSON.String), inv.Verification); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal verification")
		}
	}
	return &inv, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
