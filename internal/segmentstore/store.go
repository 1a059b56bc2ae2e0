// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     segmentstore
// Description: SQLite journal of recorded segments and trigger hits
// Created:     2026-10-13
// License:     MIT
// ============================================================================

package segmentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/msto63/speechrec/internal/segment"
)

// ErrNotFound is returned when a segment does not exist
var ErrNotFound = errors.New("segmentstore: segment not found")

// Record is a journaled segment. Audio is referenced by path, not stored.
type Record struct {
	ID            string               `json:"id"`
	StartedAt     time.Time            `json:"started_at"`
	EndedAt       time.Time            `json:"ended_at"`
	SampleRate    int                  `json:"sample_rate"`
	LeadingFrames int                  `json:"leading_frames"`
	Frames        int                  `json:"frames"`
	DurationMs    int64                `json:"duration_ms"`
	Path          string               `json:"path,omitempty"`
	Triggers      []segment.TriggerHit `json:"triggers,omitempty"`
}

// Filter defines criteria for listing segments
type Filter struct {
	Since     time.Time
	Until     time.Time
	TriggerID string // only segments with a hit of this trigger
	Limit     int
	Offset    int
}

// Config holds configuration for the store
type Config struct {
	Path string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Path: "./data/segments.db",
	}
}

// Store persists segments in SQLite
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the journal database
func Open(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		sample_rate INTEGER NOT NULL,
		leading_frames INTEGER NOT NULL,
		frames INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		path TEXT
	);

	CREATE TABLE IF NOT EXISTS trigger_hits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		segment_id TEXT NOT NULL,
		trigger_id TEXT NOT NULL,
		threshold INTEGER NOT NULL,
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segments_started_at ON segments(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_trigger_hits_segment ON trigger_hits(segment_id);
	CREATE INDEX IF NOT EXISTS idx_trigger_hits_trigger ON trigger_hits(trigger_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSegment journals a finished segment together with its trigger hits
func (s *Store) SaveSegment(ctx context.Context, seg *segment.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO segments (id, started_at, ended_at, sample_rate, leading_frames, frames, duration_ms, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, seg.ID, seg.StartedAt.UTC(), seg.EndedAt.UTC(), seg.SampleRate, seg.LeadingFrames, seg.Frames,
		seg.Duration().Milliseconds(), seg.Path)
	if err != nil {
		return fmt.Errorf("failed to insert segment: %w", err)
	}

	for _, hit := range seg.Triggers {
		if err := insertHit(ctx, tx, hit); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveTrigger journals a trigger hit that fired after its segment was saved
func (s *Store) SaveTrigger(ctx context.Context, hit segment.TriggerHit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertHit(ctx, s.db, hit)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertHit(ctx context.Context, db execer, hit segment.TriggerHit) error {
	if hit.At.IsZero() {
		hit.At = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO trigger_hits (segment_id, trigger_id, threshold, at)
		VALUES (?, ?, ?, ?)
	`, hit.SegmentID, hit.TriggerID, hit.Threshold, hit.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert trigger hit: %w", err)
	}
	return nil
}

// ListSegments returns segments, newest first
func (s *Store) ListSegments(ctx context.Context, filter Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, started_at, ended_at, sample_rate, leading_frames, frames, duration_ms, path FROM segments WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, filter.Until.UTC())
	}
	if filter.TriggerID != "" {
		query += " AND id IN (SELECT segment_id FROM trigger_hits WHERE trigger_id = ?)"
		args = append(args, filter.TriggerID)
	}

	query += " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate segments: %w", err)
	}

	for _, rec := range records {
		if rec.Triggers, err = s.hits(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// GetSegment returns a single segment
func (s *Store) GetSegment(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, sample_rate, leading_frames, frames, duration_ms, path
		FROM segments WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if rec.Triggers, err = s.hits(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var path sql.NullString
	err := row.Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.SampleRate,
		&rec.LeadingFrames, &rec.Frames, &rec.DurationMs, &path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan segment: %w", err)
	}
	rec.Path = path.String
	return &rec, nil
}

// hits loads the trigger hits of a segment; the caller holds mu
func (s *Store) hits(ctx context.Context, segmentID string) ([]segment.TriggerHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT segment_id, trigger_id, threshold, at FROM trigger_hits
		WHERE segment_id = ? ORDER BY id
	`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger hits: %w", err)
	}
	defer rows.Close()

	var hits []segment.TriggerHit
	for rows.Next() {
		var hit segment.TriggerHit
		if err := rows.Scan(&hit.SegmentID, &hit.TriggerID, &hit.Threshold, &hit.At); err != nil {
			return nil, fmt.Errorf("failed to scan trigger hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Count returns the number of journaled segments
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return n, nil
}

// Prune removes segments that ended before now minus olderThan, along with
// their trigger hits, and returns the number of segments removed
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM trigger_hits WHERE segment_id IN (SELECT id FROM segments WHERE ended_at < ?)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune trigger hits: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE ended_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune segments: %w", err)
	}
	deleted, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
