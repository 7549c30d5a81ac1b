// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists terminal task outcomes in SQLite so finished
// conversions survive the process. The in-memory record map stays the
// source of truth while a batch runs; history only ever sees terminal
// snapshots. See docs/ARCHITECTURE § History.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/docmark/pkg/types"
)

const dbFile = "docmark.db"

// Entry is one recorded terminal outcome.
type Entry struct {
	TaskID      string
	DisplayName string
	OutputPath  string
	Status      types.Status
	ErrorDetail string
	Title       string
	WordCount   int
	CharCount   int
	SizeBytes   int64
	Duration    time.Duration
	FinishedAt  time.Time
}

// Store manages the conversion history SQLite database.
type Store struct {
	db   *sql.DB
	keep int
}

// Open opens or creates the history database at dir/docmark.db, creating
// the schema if it does not exist. keep caps retained records; see Prune.
func Open(cfg types.HistoryConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	keep := cfg.Keep
	if keep <= 0 {
		keep = 500
	}

	s := &Store{db: db, keep: keep}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			output_path TEXT,
			status TEXT NOT NULL,
			error_detail TEXT,
			title TEXT,
			word_count INTEGER NOT NULL DEFAULT 0,
			char_count INTEGER NOT NULL DEFAULT 0,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_finished
			ON conversions(finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_status
			ON conversions(status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record stores one terminal task snapshot and prunes beyond the retention
// cap. Non-terminal records are rejected.
func (s *Store) Record(rec types.TaskRecord) error {
	if !rec.Status.IsTerminal() {
		return fmt.Errorf("refusing to record non-terminal task %s (%s)", rec.ID, rec.Status)
	}

	var title string
	var words, chars int
	if rec.Metadata != nil {
		title = rec.Metadata.Title
		words = rec.Metadata.WordCount
		chars = rec.Metadata.CharCount
	}
	duration := rec.UpdatedAt.Sub(rec.CreatedAt)
	if duration < 0 {
		duration = 0
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO conversions
			(task_id, display_name, output_path, status, error_detail,
			 title, word_count, char_count, size_bytes, duration_ms, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DisplayName, rec.OutputRef, string(rec.Status), rec.ErrorDetail,
		title, words, chars, rec.SizeBytes,
		duration.Milliseconds(), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording conversion %s: %w", rec.ID, err)
	}
	return s.prune()
}

// Recent returns the newest entries, most recent first. limit <= 0 means
// 20.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT task_id, display_name, output_path, status, error_detail,
		        title, word_count, char_count, size_bytes, duration_ms, finished_at
		 FROM conversions ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status, finished string
		var durationMS int64
		if err := rows.Scan(&e.TaskID, &e.DisplayName, &e.OutputPath, &status, &e.ErrorDetail,
			&e.Title, &e.WordCount, &e.CharCount, &e.SizeBytes, &durationMS, &finished); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.Status = types.Status(status)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, finished); err == nil {
			e.FinishedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Counts returns completed/failed totals over the retained history.
func (s *Store) Counts() (completed, failed int, err error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM conversions GROUP BY status`)
	if err != nil {
		return 0, 0, fmt.Errorf("counting history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, err
		}
		switch types.Status(status) {
		case types.StatusCompleted:
			completed = n
		case types.StatusFailed:
			failed = n
		}
	}
	return completed, failed, rows.Err()
}

// prune drops the oldest rows beyond the retention cap.
func (s *Store) prune() error {
	_, err := s.db.Exec(
		`DELETE FROM conversions WHERE rowid NOT IN
			(SELECT rowid FROM conversions ORDER BY rowid DESC LIMIT ?)`, s.keep)
	if err != nil {
		return fmt.Errorf("pruning history: %w", err)
	}
	return nil
}
