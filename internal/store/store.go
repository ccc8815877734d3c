// Package store persists the audit log of generations and exports, and
// the access-gate sessions. Wizard state itself is never stored.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/dethi/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generation_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace_id TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER NOT NULL DEFAULT 0,
		prompt_chars INTEGER NOT NULL DEFAULT 0,
		response_chars INTEGER NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_generation_events_created ON generation_events(created_at);

	CREATE TABLE IF NOT EXISTS exports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace_id TEXT NOT NULL DEFAULT '',
		slot TEXT NOT NULL,
		format TEXT NOT NULL,
		filename TEXT NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS gate_passes (
		token TEXT PRIMARY KEY,
		issued_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_gate_passes_expires ON gate_passes(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendGenerationEvent stores one collaborator call.
func (s *Store) AppendGenerationEvent(ctx context.Context, ev model.GenerationEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_events
		 (workspace_id, operation, model, latency_ms, prompt_chars, response_chars,
		  input_tokens, output_tokens, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.WorkspaceID, ev.Operation, ev.Model, ev.LatencyMs, ev.PromptChars, ev.ResponseChars,
		ev.InputTokens, ev.OutputTokens, ev.Success, ev.Error, ev.CreatedAt,
	)
	return err
}

// ListGenerationEvents returns the most recent events first. A limit of
// zero or less returns every event.
func (s *Store) ListGenerationEvents(ctx context.Context, limit int) ([]model.GenerationEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, operation, model, latency_ms, prompt_chars, response_chars,
		        input_tokens, output_tokens, success, error, created_at
		 FROM generation_events ORDER BY id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.GenerationEvent
	for rows.Next() {
		var ev model.GenerationEvent
		if err := rows.Scan(&ev.ID, &ev.WorkspaceID, &ev.Operation, &ev.Model, &ev.LatencyMs,
			&ev.PromptChars, &ev.ResponseChars, &ev.InputTokens, &ev.OutputTokens,
			&ev.Success, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// AppendExportEvent stores one document download.
func (s *Store) AppendExportEvent(ctx context.Context, ev model.ExportEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (workspace_id, slot, format, filename, bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.WorkspaceID, string(ev.Slot), ev.Format, ev.Filename, ev.Bytes, ev.CreatedAt,
	)
	return err
}

// ListExportEvents returns the most recent downloads first.
func (s *Store) ListExportEvents(ctx context.Context, limit int) ([]model.ExportEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, slot, format, filename, bytes, created_at
		 FROM exports ORDER BY id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.ExportEvent
	for rows.Next() {
		var ev model.ExportEvent
		var slot string
		if err := rows.Scan(&ev.ID, &ev.WorkspaceID, &slot, &ev.Format, &ev.Filename, &ev.Bytes, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Slot = model.Slot(slot)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// UsageStats summarizes the generation log.
type UsageStats struct {
	Generations  int
	Failures     int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// Usage aggregates generation events created at or after since.
func (s *Store) Usage(ctx context.Context, since time.Time) (UsageStats, error) {
	var u UsageStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0),
		        AVG(latency_ms)
		 FROM generation_events WHERE created_at >= ?`, since,
	).Scan(&u.Generations, &u.Failures, &u.InputTokens, &u.OutputTokens, &avg)
	if err != nil {
		return u, err
	}
	if avg.Valid {
		u.AvgLatencyMs = int64(avg.Float64)
	}
	return u, nil
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
