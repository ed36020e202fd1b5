package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certportal/internal/audit"
	id "certportal/pkg/domain"
)

// Store persists audit entries in PostgreSQL. The table is append-only; no
// update or delete statements exist here on purpose.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL-backed audit store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Schema is applied by migrations; kept here as the authoritative shape for
// integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id UUID PRIMARY KEY,
    ts TIMESTAMPTZ NOT NULL,
    actor_id TEXT NOT NULL DEFAULT '',
    actor_display_name TEXT NOT NULL DEFAULT '',
    actor_role TEXT NOT NULL,
    action TEXT NOT NULL,
    category TEXT NOT NULL,
    target TEXT NOT NULL,
    severity TEXT NOT NULL,
    outcome TEXT NOT NULL,
    source_address TEXT NOT NULL DEFAULT '',
    metadata JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS audit_log_ts_idx ON audit_log (ts DESC);
CREATE INDEX IF NOT EXISTS audit_log_actor_idx ON audit_log (actor_id);
CREATE INDEX IF NOT EXISTS audit_log_category_idx ON audit_log (category);
`

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (
			id, ts, actor_id, actor_display_name, actor_role,
			action, category, target, severity, outcome, source_address, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		entry.ID.String(), entry.Timestamp, entry.ActorID, entry.ActorDisplayName,
		entry.ActorRole, string(entry.Action), string(entry.Category), entry.Target,
		string(entry.Severity), string(entry.Outcome), entry.SourceAddress, metadata,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns matching entries sorted by timestamp descending.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	query := `
		SELECT id, ts, actor_id, actor_display_name, actor_role,
		       action, category, target, severity, outcome, source_address, metadata
		FROM audit_log
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR actor_id = $2)
		ORDER BY ts DESC`
	args := []any{string(filter.Category), filter.ActorID}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (audit.Entry, error) {
	var (
		entry    audit.Entry
		entryID  string
		metadata []byte
	)
	err := row.Scan(
		&entryID, &entry.Timestamp, &entry.ActorID, &entry.ActorDisplayName,
		&entry.ActorRole, &entry.Action, &entry.Category, &entry.Target,
		&entry.Severity, &entry.Outcome, &entry.SourceAddress, &metadata,
	)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("scan audit entry: %w", err)
	}
	parsed, err := id.ParseEntryID(entryID)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("parse audit entry id: %w", err)
	}
	entry.ID = parsed
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return audit.Entry{}, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
	}
	return entry, nil
}
