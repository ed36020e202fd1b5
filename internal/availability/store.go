package availability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"certportal/pkg/platform/sentinel"
)

// Store persists the availability singleton.
type Store interface {
	Load(ctx context.Context) (Status, error)
	Save(ctx context.Context, status Status) error
}

// MemoryStore holds the singleton in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	status Status
	loaded bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return Status{}, sentinel.ErrNotFound
	}
	return s.status, nil
}

func (s *MemoryStore) Save(_ context.Context, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.loaded = true
	return nil
}

// PostgresStore persists the singleton as a single fixed row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is applied by migrations; kept here for integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS system_availability (
    singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
    mode TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    scheduled_start TIMESTAMPTZ,
    scheduled_end TIMESTAMPTZ,
    changed_by TEXT NOT NULL DEFAULT ''
);
`

func (s *PostgresStore) Load(ctx context.Context) (Status, error) {
	var (
		status Status
		start  sql.NullTime
		end    sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT mode, message, scheduled_start, scheduled_end, changed_by
		FROM system_availability WHERE singleton`).
		Scan(&status.Mode, &status.Message, &start, &end, &status.ChangedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Status{}, fmt.Errorf("load availability: %w", err)
	}
	if start.Valid {
		status.ScheduledStart = start.Time
	}
	if end.Valid {
		status.ScheduledEnd = end.Time
	}
	return status, nil
}

func (s *PostgresStore) Save(ctx context.Context, status Status) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_availability (singleton, mode, message, scheduled_start, scheduled_end, changed_by)
		VALUES (TRUE, $1, $2, $3, $4, $5)
		ON CONFLICT (singleton) DO UPDATE
		SET mode = $1, message = $2, scheduled_start = $3, scheduled_end = $4, changed_by = $5`,
		string(status.Mode), status.Message,
		nullableTime(status.ScheduledStart), nullableTime(status.ScheduledEnd),
		status.ChangedBy,
	)
	if err != nil {
		return fmt.Errorf("save availability: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
