package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/kasametrics/internal/collector"
	"github.com/nerrad567/kasametrics/internal/infrastructure/database"
)

// pruneEvery limits how often Record deletes expired rows.
const pruneEvery = time.Hour

// DefaultLimit caps Recent when no limit is given.
const DefaultLimit = 100

// Store persists cycle reports.
//
// Thread Safety: All methods are safe for concurrent use.
type Store struct {
	db        *database.DB
	retention time.Duration
	now       func() time.Time

	mu        sync.Mutex
	lastPrune time.Time
}

// NewStore creates a store on a migrated database. A non-positive retention
// keeps rows forever.
func NewStore(db *database.DB, retention time.Duration) *Store {
	return &Store{db: db, retention: retention, now: time.Now}
}

// Record inserts one cycle and prunes expired rows at most once an hour.
func (s *Store) Record(ctx context.Context, r collector.CycleReport) error {
	var writeErr sql.NullString
	if r.WriteErr != nil {
		writeErr = sql.NullString{String: r.WriteErr.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_history (
			id, started_at, duration_ms,
			devices_ok, devices_timeout, devices_failed, devices_skipped,
			measurements, write_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Start.UnixMilli(), r.Duration.Milliseconds(),
		r.OK, r.TimedOut, r.Failed, r.Skipped,
		r.Measurements, writeErr,
	)
	if err != nil {
		return fmt.Errorf("inserting cycle %s: %w", r.ID, err)
	}

	if s.retention <= 0 || !s.pruneDue() {
		return nil
	}
	if _, err := s.Prune(ctx, s.now().Add(-s.retention)); err != nil {
		return err
	}
	return nil
}

func (s *Store) pruneDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < pruneEvery {
		return false
	}
	s.lastPrune = now
	return true
}

// Prune deletes cycles that started before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cycle_history WHERE started_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning cycle history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning cycle history: %w", err)
	}
	return n, nil
}

// Recent returns up to limit cycles, newest first. Device results are not
// stored and are nil in the returned reports.
func (s *Store) Recent(ctx context.Context, limit int) ([]collector.CycleReport, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms,
			devices_ok, devices_timeout, devices_failed, devices_skipped,
			measurements, write_error
		FROM cycle_history
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying cycle history: %w", err)
	}
	defer rows.Close()

	var out []collector.CycleReport
	for rows.Next() {
		var (
			r          collector.CycleReport
			startedAt  int64
			durationMS int64
			writeErr   sql.NullString
		)
		if err := rows.Scan(&r.ID, &startedAt, &durationMS,
			&r.OK, &r.TimedOut, &r.Failed, &r.Skipped,
			&r.Measurements, &writeErr); err != nil {
			return nil, fmt.Errorf("scanning cycle history: %w", err)
		}
		r.Start = time.UnixMilli(startedAt).UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if writeErr.Valid {
			r.WriteErr = errors.New(writeErr.String)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cycle history: %w", err)
	}
	return out, nil
}
