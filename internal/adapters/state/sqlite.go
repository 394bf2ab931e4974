package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

//go:embed migrations/001_runs.sql
var migrationV1 string

//go:embed migrations/002_run_state_index.sql
var migrationV2 string

// SQLiteRunStore implements core.RunStore on a single SQLite file. Indexed
// columns serve listings; the full record is kept as a JSON payload.
type SQLiteRunStore struct {
	dbPath string
	db     *sql.DB

	maxRetries    int
	baseRetryWait time.Duration
}

// SQLiteRunStoreOption configures the store.
type SQLiteRunStoreOption func(*SQLiteRunStore)

// WithBusyRetries sets how often a write is retried while the database is locked.
func WithBusyRetries(n int, baseWait time.Duration) SQLiteRunStoreOption {
	return func(s *SQLiteRunStore) {
		s.maxRetries = n
		s.baseRetryWait = baseWait
	}
}

// NewSQLiteRunStore opens (or creates) the database at dbPath and applies
// pending migrations.
func NewSQLiteRunStore(dbPath string, opts ...SQLiteRunStoreOption) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{
		dbPath:        dbPath,
		maxRetries:    5,
		baseRetryWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers inside the process.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteRunStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	for i, migration := range []string{migrationV1, migrationV2} {
		version := i + 1
		if version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", version, err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteRunStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

// splitStatements splits a SQL script into statements, dropping comment lines.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}

func (s *SQLiteRunStore) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.baseRetryWait * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, s.maxRetries, lastErr)
}

func isSQLiteBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// Save implements core.RunStore.
func (s *SQLiteRunStore) Save(ctx context.Context, record *core.RunRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", record.RunID, err)
	}

	return s.retryWrite(ctx, "Save", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO runs (run_id, goal, state, success, result, output_node, error, started_at, ended_at, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				goal = excluded.goal,
				state = excluded.state,
				success = excluded.success,
				result = excluded.result,
				output_node = excluded.output_node,
				error = excluded.error,
				started_at = excluded.started_at,
				ended_at = excluded.ended_at,
				payload = excluded.payload
		`,
			record.RunID,
			record.Goal,
			string(record.State),
			record.Success,
			record.Result,
			string(record.OutputNode),
			record.Error,
			formatTime(record.StartedAt),
			formatTime(record.EndedAt),
			string(payload),
		)
		return err
	})
}

// Get implements core.RunStore.
func (s *SQLiteRunStore) Get(ctx context.Context, runID string) (*core.RunRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM runs WHERE run_id = ?", runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrRunMissing(runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return decodeRecord([]byte(payload))
}

// List implements core.RunStore.
func (s *SQLiteRunStore) List(ctx context.Context, filter core.RunFilter) ([]*core.RunRecord, error) {
	query := "SELECT payload FROM runs"
	var args []any
	if filter.State != "" {
		query += " WHERE state = ?"
		args = append(args, string(filter.State))
	}
	query += " ORDER BY started_at DESC, run_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var records []*core.RunRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		rec, err := decodeRecord([]byte(payload))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete implements core.RunStore.
func (s *SQLiteRunStore) Delete(ctx context.Context, runID string) error {
	var affected int64
	err := s.retryWrite(ctx, "Delete", func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrRunMissing(runID)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// formatTime keeps nanoseconds and a fixed width so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
