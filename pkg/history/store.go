// Package history archives final triage reports to a local SQLite database.
// The triage run itself is transient; the archive exists so past runs can be
// listed and inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/jingkaihe/prtriage/pkg/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	review_ref TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	report TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// DefaultDBPath returns the default location for the run archive.
func DefaultDBPath() (string, error) {
	if basePath := os.Getenv("PRTRIAGE_BASE_PATH"); basePath != "" {
		return filepath.Join(basePath, "history.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".prtriage", "history.db"), nil
}

// Summary is one archived run without its full report payload.
type Summary struct {
	ID        string    `db:"id"`
	ReviewRef string    `db:"review_ref"`
	CreatedAt time.Time `db:"created_at"`
}

// Record is one archived run including its report.
type Record struct {
	Summary
	Report *report.Report
}

// Store persists run records in SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (creating if needed) the archive database at dbPath.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return &Store{db: db}, nil
}

// configure sets up SQLite pragmas for WAL mode operation.
func configure(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled, current mode: %s", journalMode)
	}
	return nil
}

// Save archives a final report and returns the generated run id.
func (s *Store) Save(ctx context.Context, rep *report.Report) (string, error) {
	payload, err := json.Marshal(rep)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode report")
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO runs (id, review_ref, created_at, report) VALUES (?, ?, ?, ?)",
		id, rep.ReviewRef, time.Now().UTC(), string(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to insert run record")
	}
	return id, nil
}

// List returns archived run summaries, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var summaries []Summary
	err := s.db.SelectContext(ctx, &summaries,
		"SELECT id, review_ref, created_at FROM runs ORDER BY created_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list run records")
	}
	return summaries, nil
}

// Get loads one archived run by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var row struct {
		Summary
		Report string `db:"report"`
	}
	err := s.db.GetContext(ctx, &row,
		"SELECT id, review_ref, created_at, report FROM runs WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load run record")
	}
	rec := &Record{Summary: row.Summary}
	if err := json.Unmarshal([]byte(row.Report), &rec.Report); err != nil {
		return nil, errors.Wrap(err, "failed to decode archived report")
	}
	return rec, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
