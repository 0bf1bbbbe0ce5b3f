package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/estateops/pkg/storage"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		kind TEXT NOT NULL,
		attributes JSONB NOT NULL DEFAULT '{}',
		version BIGINT NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_tenant_kind ON records (tenant_id, kind, created_at, id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		attributes TEXT NOT NULL DEFAULT '{}',
		version INTEGER NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_tenant_kind ON records (tenant_id, kind, created_at, id)`,
}

// Every statement below filters on tenant_id. Placeholders are numbered
// in order of appearance, which both lib/pq and go-sqlite3 accept.
const (
	insertRecordSQL = `INSERT INTO records (id, tenant_id, kind, attributes, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	selectRecordSQL = `SELECT id, tenant_id, kind, attributes, version, created_by, created_at, updated_at
		FROM records WHERE tenant_id = $1 AND kind = $2 AND id = $3`
	updateRecordSQL = `UPDATE records SET attributes = $1, version = version + 1, updated_at = $2
		WHERE tenant_id = $3 AND kind = $4 AND id = $5 AND version = $6`
	deleteRecordSQL = `DELETE FROM records WHERE tenant_id = $1 AND kind = $2 AND id = $3`
	listRecordsSQL  = `SELECT id, tenant_id, kind, attributes, version, created_by, created_at, updated_at
		FROM records WHERE tenant_id = $1 AND kind = $2
		ORDER BY created_at, id LIMIT $3 OFFSET $4`
)

// SQLStore persists records in PostgreSQL or SQLite
type SQLStore struct {
	db *storage.DB
}

// NewSQLStore creates a store over db. Call Migrate before first use.
func NewSQLStore(db *storage.DB) (*SQLStore, error) {
	if db == nil || db.DB == nil {
		return nil, errors.New("database connection is required")
	}
	return &SQLStore{db: db}, nil
}

// Migrate creates the records table when it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.db.IsSQLite() {
		schema = sqliteSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure records table: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Insert(ctx context.Context, rec Record) error {
	attrs, err := json.Marshal(rec.clone().Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertRecordSQL,
		rec.ID, rec.TenantID, string(rec.Kind), string(attrs),
		rec.Version, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", rec.Kind, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, tenantID uuid.UUID, kind Kind, id uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecordSQL, tenantID, string(kind), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return rec, nil
}

func (s *SQLStore) Update(ctx context.Context, rec Record) (Record, error) {
	attrs, err := json.Marshal(rec.clone().Attributes)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode attributes: %w", err)
	}

	res, err := s.db.ExecContext(ctx, updateRecordSQL,
		string(attrs), rec.UpdatedAt, rec.TenantID, string(rec.Kind), rec.ID, rec.Version,
	)
	if err != nil {
		return Record{}, fmt.Errorf("failed to update %s: %w", rec.Kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("failed to update %s: %w", rec.Kind, err)
	}
	if n == 0 {
		// either gone or somebody else bumped the version
		if _, err := s.Get(ctx, rec.TenantID, rec.Kind, rec.ID); err != nil {
			return Record{}, err
		}
		return Record{}, ErrConflict
	}

	return s.Get(ctx, rec.TenantID, rec.Kind, rec.ID)
}

func (s *SQLStore) Delete(ctx context.Context, tenantID uuid.UUID, kind Kind, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, deleteRecordSQL, tenantID, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, tenantID uuid.UUID, kind Kind, opts ListOptions) ([]Record, error) {
	opts = opts.normalize()

	rows, err := s.db.QueryContext(ctx, listRecordsSQL, tenantID, string(kind), opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec   Record
		kind  string
		attrs []byte
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &kind, &attrs, &rec.Version, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Kind = Kind(kind)
	rec.Attributes = map[string]interface{}{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return Record{}, fmt.Errorf("corrupt attributes for %s: %w", rec.ID, err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// storeNow is the current time at a precision both drivers round-trip
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
