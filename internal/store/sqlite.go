package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"invoiz/internal/model"
	"invoiz/internal/util"

	_ "modernc.org/sqlite"
)

// Run summarizes one pipeline invocation.
type Run struct {
	ID         string
	Query      string
	Limit      int
	StartedAt  time.Time
	FinishedAt time.Time
	Records    int
	Error      string
}

// SQLiteStore is the results ledger: every processed message of every run,
// stored as JSON plus a few columns for ordering and lookups.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Parallel workers write through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL DEFAULT '',
	max_results INTEGER NOT NULL DEFAULT 0,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	records     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS records (
	message_id   TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	from_email   TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT '',
	date_rfc3339 TEXT NOT NULL DEFAULT '',
	folder       TEXT NOT NULL DEFAULT '',
	payload      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS records_date ON records (date_rfc3339);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartRun(ctx context.Context, id, query string, limit int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, query, max_results, started_at) VALUES (?, ?, ?, ?)",
		id, query, limit, time.Now().UTC().Format(time.RFC3339))
	return err
}

// FinishRun stamps the run with its record count and, if it aborted, the
// error that stopped it.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, records int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, records = ?, error = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), records, msg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: no such run", id)
	}
	return nil
}

// LastRun returns the most recently started run, or nil if there is none.
func (s *SQLiteStore) LastRun(ctx context.Context) (*Run, error) {
	var (
		r                 Run
		started, finished string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, query, max_results, started_at, finished_at, records, error FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1",
	).Scan(&r.ID, &r.Query, &r.Limit, &started, &finished, &r.Records, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return &r, nil
}

// SaveRecord stores rec, replacing any earlier record of the same message.
func (s *SQLiteStore) SaveRecord(ctx context.Context, runID string, rec model.EmailRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.MessageID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (message_id, run_id, from_email, subject, date_rfc3339, folder, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			run_id       = excluded.run_id,
			from_email   = excluded.from_email,
			subject      = excluded.subject,
			date_rfc3339 = excluded.date_rfc3339,
			folder       = excluded.folder,
			payload      = excluded.payload
	`, rec.MessageID, runID, util.ParseSender(rec.Header.From).Address, rec.Header.Subject,
		util.DateRFC3339(rec.Header.Date), rec.Folder, string(payload))
	return err
}

// LoadRecords returns every stored record, newest message first. An empty
// runID loads all runs.
func (s *SQLiteStore) LoadRecords(ctx context.Context, runID string) ([]model.EmailRecord, error) {
	query := "SELECT payload FROM records"
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY date_rfc3339 DESC, message_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.EmailRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec model.EmailRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode stored record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountRecords counts the records stored by runID, or by every run if runID
// is "". A run that never finished still has its saved records counted.
func (s *SQLiteStore) CountRecords(ctx context.Context, runID string) (int, error) {
	query := "SELECT COUNT(*) FROM records"
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}
