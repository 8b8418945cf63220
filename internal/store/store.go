// Package store persists the last computed matrix in SQLite so a restarted
// server can answer /get_graphs before its first recompute finishes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

// SchemaVersion is recorded in the meta table.
const SchemaVersion = 1

// ErrEmpty is returned by LoadMatrix when nothing has been saved yet.
var ErrEmpty = errors.New("no stored matrix")

// Run describes one saved matrix.
type Run struct {
	ID       int64
	SavedAt  time.Time
	Source   string
	Duration time.Duration
}

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers; SQLite allows one at a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			saved_at TEXT NOT NULL,
			source TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cells (
			category TEXT NOT NULL,
			extension TEXT NOT NULL,
			document TEXT NOT NULL,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			PRIMARY KEY (category, extension)
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(SchemaVersion))
	return err
}

// SaveMatrix replaces the stored matrix in one transaction. Incomplete
// matrices are rejected.
func (s *Store) SaveMatrix(ctx context.Context, m payload.Matrix, source string, took time.Duration) (Run, error) {
	if err := m.Validate(); err != nil {
		return Run{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, err
	}
	defer tx.Rollback()

	run := Run{SavedAt: time.Now().UTC().Truncate(time.Second), Source: source, Duration: took}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (saved_at, source, duration_ms) VALUES (?, ?, ?)`,
		run.SavedAt.Format(time.RFC3339), source, took.Milliseconds())
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return Run{}, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cells (category, extension, document, run_id) VALUES (?, ?, ?, ?)
		ON CONFLICT (category, extension) DO UPDATE SET document = excluded.document, run_id = excluded.run_id
	`)
	if err != nil {
		return Run{}, err
	}
	defer stmt.Close()

	for _, sel := range selection.All() {
		raw, _ := m.Cell(sel)
		if _, err := stmt.ExecContext(ctx, string(sel.Category), string(sel.Extension), raw, run.ID); err != nil {
			return Run{}, fmt.Errorf("insert cell %s: %w", sel, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, err
	}
	return run, nil
}

// LoadMatrix returns the stored matrix and the run that produced it.
func (s *Store) LoadMatrix(ctx context.Context) (payload.Matrix, Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, extension, document, run_id FROM cells`)
	if err != nil {
		return nil, Run{}, err
	}
	defer rows.Close()

	m := make(payload.Matrix)
	var runID int64
	for rows.Next() {
		var cat, ext, doc string
		if err := rows.Scan(&cat, &ext, &doc, &runID); err != nil {
			return nil, Run{}, err
		}
		sel := selection.Selection{Category: selection.Category(cat), Extension: selection.Extension(ext)}
		if !sel.Valid() {
			continue
		}
		m.Set(sel, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, Run{}, err
	}
	if len(m) == 0 {
		return nil, Run{}, ErrEmpty
	}
	if err := m.Validate(); err != nil {
		return nil, Run{}, err
	}

	run, err := s.run(ctx, runID)
	if err != nil {
		return nil, Run{}, err
	}
	return m, run, nil
}

func (s *Store) run(ctx context.Context, id int64) (Run, error) {
	var savedAt string
	var ms int64
	run := Run{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT saved_at, source, duration_ms FROM runs WHERE id = ?`, id).
		Scan(&savedAt, &run.Source, &ms)
	if err != nil {
		return Run{}, fmt.Errorf("load run %d: %w", id, err)
	}
	run.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
	run.Duration = time.Duration(ms) * time.Millisecond
	return run, nil
}

// Runs lists the most recent saves, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, saved_at, source, duration_ms FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var savedAt string
		var ms int64
		if err := rows.Scan(&r.ID, &savedAt, &r.Source, &ms); err != nil {
			return nil, err
		}
		r.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
