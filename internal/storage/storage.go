// Package storage mirrors printer and job history into a local SQLite
// database for reporting purposes. Spec.md's explicit non-goal is
// crash-durable spooling; this package does not change that guarantee — it
// exists purely so completed-job and printer-configuration history survives
// a process restart for diagnostics, the way the teacher's
// storage.SQLiteStore persists discovered-device history for its own
// reporting surface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Logger is the minimal leveled-logging surface storage needs; satisfied by
// *ippd/internal/logger.Logger without an import-cycle-forcing dependency.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
}

// PrinterRow is a snapshot of a printer's static configuration, mirrored on
// every Create-Printer/Set-Printer-Attributes per SPEC_FULL.md §3.
type PrinterRow struct {
	ID         int
	Name       string
	DeviceURI  string
	Driver     string
	State      string
	ConfigTime time.Time
}

// JobRow is a snapshot of a job at a terminal-state transition, mirrored
// per SPEC_FULL.md §4.3 ("Job records are additionally mirrored into
// internal/storage ... on every terminal-state transition").
type JobRow struct {
	ID          int
	PrinterID   int
	Username    string
	Name        string
	Format      string
	State       string
	Impressions int
	Created     time.Time
	Completed   time.Time
	Message     string
	Attributes  map[string]interface{}
}

// Store is a SQLite-backed mirror of printer and job history. A nil *Store
// is valid and every method on it is a no-op, so callers that run without
// persistence configured (e.g. unit tests) don't need a separate code path.
type Store struct {
	db  *sql.DB
	log Logger
}

// Open creates or attaches to a SQLite database at path (":memory:" for an
// ephemeral store) and ensures its schema exists, following the teacher's
// NewSQLiteStore: pure-Go driver, WAL journal mode, a bounded connection
// pool, and a busy_timeout so concurrent printer goroutines don't trip over
// each other's writes.
func Open(path string, log Logger) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS printers (
		id          INTEGER PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		device_uri  TEXT,
		driver      TEXT,
		state       TEXT,
		config_time DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id            INTEGER NOT NULL,
		printer_id    INTEGER NOT NULL,
		username      TEXT,
		name          TEXT,
		format        TEXT,
		state         TEXT NOT NULL,
		impressions   INTEGER DEFAULT 0,
		created_at    DATETIME NOT NULL,
		completed_at  DATETIME,
		message       TEXT,
		attributes    TEXT,
		PRIMARY KEY (printer_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_printer ON jobs(printer_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_completed ON jobs(completed_at);

	CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, ?)`, time.Now())
	return err
}

// UpsertPrinter mirrors a printer's current configuration. Called whenever
// Create-Printer or Set-Printer-Attributes mutates a printer (SPEC_FULL.md
// §4.4's config-change counter already tracks *that* something changed;
// this records *what*).
func (s *Store) UpsertPrinter(ctx context.Context, row PrinterRow) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO printers (id, name, device_uri, driver, state, config_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			device_uri = excluded.device_uri,
			driver = excluded.driver,
			state = excluded.state,
			config_time = excluded.config_time
	`, row.ID, row.Name, row.DeviceURI, row.Driver, row.State, row.ConfigTime)
	if err != nil && s.log != nil {
		s.log.Error("storage: upsert printer failed", "printer", row.Name, "error", err.Error())
	}
	return err
}

// RecordJob mirrors a job snapshot at a terminal-state transition, per
// spec.md §4.3's cleanup/history design, into the "jobs" table.
func (s *Store) RecordJob(ctx context.Context, row JobRow) error {
	if s == nil {
		return nil
	}
	attrsJSON, _ := json.Marshal(row.Attributes)

	var completed interface{}
	if !row.Completed.IsZero() {
		completed = row.Completed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, printer_id, username, name, format, state, impressions, created_at, completed_at, message, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(printer_id, id) DO UPDATE SET
			state = excluded.state,
			impressions = excluded.impressions,
			completed_at = excluded.completed_at,
			message = excluded.message,
			attributes = excluded.attributes
	`, row.ID, row.PrinterID, row.Username, row.Name, row.Format, row.State,
		row.Impressions, row.Created, completed, row.Message, string(attrsJSON))
	if err != nil && s.log != nil {
		s.log.Error("storage: record job failed", "job", row.ID, "printer", row.PrinterID, "error", err.Error())
	}
	return err
}

// CompletedJobs returns job history for a printer, most recent first,
// bounded by limit (0 = unbounded). Used by admin reporting surfaces, not
// by the IPP engine itself (Get-Jobs serves live state from internal/job).
func (s *Store) CompletedJobs(ctx context.Context, printerID, limit int) ([]JobRow, error) {
	if s == nil {
		return nil, nil
	}
	query := `
		SELECT id, printer_id, username, name, format, state, impressions, created_at, completed_at, message
		FROM jobs WHERE printer_id = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
	`
	args := []interface{}{printerID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query completed jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var r JobRow
		var completed sql.NullTime
		var message sql.NullString
		if err := rows.Scan(&r.ID, &r.PrinterID, &r.Username, &r.Name, &r.Format, &r.State,
			&r.Impressions, &r.Created, &completed, &message); err != nil {
			return nil, fmt.Errorf("storage: scan job row: %w", err)
		}
		if completed.Valid {
			r.Completed = completed.Time
		}
		r.Message = message.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneJobsOlderThan deletes mirrored job rows whose completion predates
// cutoff, mirroring the retention policy job.Queue.Clean applies to the
// in-memory completed-job queue (spec.md §4.3's cleanup policy) so the
// reporting database doesn't grow without bound either.
func (s *Store) PruneJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE completed_at IS NOT NULL AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("storage: prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
