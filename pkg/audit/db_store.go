package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/estateops/pkg/storage"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS activity_log (
		id VARCHAR(26) PRIMARY KEY,
		tenant_id UUID NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		resource_kind VARCHAR(50) NOT NULL,
		resource_id VARCHAR(255) NOT NULL,
		actor VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		metadata JSONB,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_log_tenant_time ON activity_log(tenant_id, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_log_occurred_at ON activity_log(occurred_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS activity_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		resource_kind TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		metadata TEXT,
		occurred_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_log_tenant_time ON activity_log(tenant_id, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_log_occurred_at ON activity_log(occurred_at)`,
}

// DBStore implements Store on PostgreSQL or SQLite
type DBStore struct {
	db *storage.DB
}

// NewDBStore creates a database-backed activity store and ensures its
// table exists
func NewDBStore(ctx context.Context, db *storage.DB) (*DBStore, error) {
	if db == nil || db.DB == nil {
		return nil, errors.New("database connection is required")
	}

	s := &DBStore{db: db}
	if err := s.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure activity_log table: %w", err)
	}
	return s, nil
}

func (s *DBStore) ensureTable(ctx context.Context) error {
	schema := postgresSchema
	if s.db.IsSQLite() {
		schema = sqliteSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts an entry, ignoring a replay of the same event id
func (s *DBStore) Append(ctx context.Context, entry Entry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO activity_log (
			id, tenant_id, event_type, resource_kind, resource_id,
			actor, status, metadata, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.EventType, entry.ResourceKind, entry.ResourceID,
		entry.Actor, string(entry.Status), nullableJSON(metadataJSON), entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity entry: %w", err)
	}
	return nil
}

// Search returns the tenant's entries newest first. The tenant predicate
// is always the first condition.
func (s *DBStore) Search(ctx context.Context, tenantID uuid.UUID, filter SearchFilter) ([]Entry, error) {
	filter = filter.normalize()

	query := `
		SELECT
			id, tenant_id, event_type, resource_kind, resource_id,
			actor, status, metadata, occurred_at
		FROM activity_log
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	argCount := 2

	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = fmt.Sprintf("$%d", argCount)
			args = append(args, et)
			argCount++
		}
		query += fmt.Sprintf(" AND event_type IN (%s)", strings.Join(placeholders, ", "))
	}

	if filter.ResourceKind != "" {
		query += fmt.Sprintf(" AND resource_kind = $%d", argCount)
		args = append(args, filter.ResourceKind)
		argCount++
	}

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}

	if filter.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", argCount)
		args = append(args, filter.Actor)
		argCount++
	}

	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argCount)
		args = append(args, filter.Since)
		argCount++
	}

	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argCount)
		args = append(args, filter.Until)
		argCount++
	}

	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search activity log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e            Entry
			status       string
			metadataJSON []byte
		)
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.EventType, &e.ResourceKind, &e.ResourceID,
			&e.Actor, &status, &metadataJSON, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		e.Status = Status(status)
		e.OccurredAt = e.OccurredAt.UTC()
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search activity log: %w", err)
	}
	return entries, nil
}

// Purge removes entries older than cutoff
func (s *DBStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity_log WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge activity log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge activity log: %w", err)
	}
	return n, nil
}

func nullableJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
