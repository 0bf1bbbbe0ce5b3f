package records

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/estateops/pkg/storage"
)

func setupSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := storage.OpenDB(context.Background(), storage.DBConfig{Driver: storage.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func setupMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	store, err := NewSQLStore(storage.Wrap(raw, storage.DriverPostgres))
	require.NoError(t, err)
	return store, mock
}

func TestNewSQLStore_RequiresDB(t *testing.T) {
	_, err := NewSQLStore(nil)
	assert.ErrorContains(t, err, "database connection is required")
}

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	store := setupSQLiteStore(t)
	svc, _ := newTestService(t, store, newScope(t))
	ctx := context.Background()

	rec, err := svc.Create(ctx, KindTask, map[string]interface{}{"title": "Paint fence", "priority": 2})
	require.NoError(t, err)

	got, err := svc.Get(ctx, KindTask, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.TenantID, got.TenantID)
	assert.Equal(t, "Paint fence", got.Attr("title"))
	assert.Equal(t, float64(2), got.Attributes["priority"])
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	assigned, err := svc.Assign(ctx, rec.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), assigned.Version)

	_, err = store.Update(ctx, rec)
	assert.ErrorIs(t, err, ErrConflict, "stale version must not overwrite")

	list, err := svc.List(ctx, KindTask, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "agent-1", list[0].Attr("assignee"))

	require.NoError(t, svc.Delete(ctx, KindTask, rec.ID))
	_, err = store.Update(ctx, assigned)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_SQLiteTenantIsolation(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	alpha, _ := newTestService(t, store, newScope(t))
	beta, _ := newTestService(t, store, newScope(t))

	rec, err := alpha.Create(ctx, KindContact, map[string]interface{}{"name": "Alice"})
	require.NoError(t, err)

	_, err = beta.Get(ctx, KindContact, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, beta.Delete(ctx, KindContact, rec.ID), ErrNotFound)

	foreign := rec
	foreign.TenantID = beta.Scope().ID()
	_, err = store.Update(ctx, foreign)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := beta.List(ctx, KindContact, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLStore_Migrate(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_records_tenant_kind").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_MigrateError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").WillReturnError(errors.New("permission denied"))

	err := store.Migrate(context.Background())
	assert.ErrorContains(t, err, "failed to ensure records table")
}

func TestSQLStore_GetFiltersByTenant(t *testing.T) {
	store, mock := setupMockStore(t)
	tenantID, id := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM records WHERE tenant_id = $1 AND kind = $2 AND id = $3")).
		WithArgs(tenantID, "task", id).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), tenantID, KindTask, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateConflict(t *testing.T) {
	store, mock := setupMockStore(t)
	ctx := context.Background()
	rec := Record{ID: uuid.New(), TenantID: uuid.New(), Kind: KindTask, Version: 3, Attributes: map[string]interface{}{"title": "x"}}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET attributes = $1")).
		WithArgs(`{"title":"x"}`, sqlmock.AnyArg(), rec.TenantID, "task", rec.ID, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, tenant_id").
		WithArgs(rec.TenantID, "task", rec.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "kind", "attributes", "version", "created_by", "created_at", "updated_at"}).
			AddRow(rec.ID.String(), rec.TenantID.String(), "task", []byte(`{"title":"y"}`), 4, "u", rec.CreatedAt, rec.UpdatedAt))

	_, err := store.Update(ctx, rec)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeleteMissing(t *testing.T) {
	store, mock := setupMockStore(t)
	tenantID, id := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM records WHERE tenant_id = $1 AND kind = $2 AND id = $3")).
		WithArgs(tenantID, "contact", id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), tenantID, KindContact, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ListError(t *testing.T) {
	store, mock := setupMockStore(t)
	tenantID := uuid.New()

	mock.ExpectQuery("ORDER BY created_at, id LIMIT").
		WithArgs(tenantID, "property", DefaultListLimit, 0).
		WillReturnError(errors.New("connection reset"))

	_, err := store.List(context.Background(), tenantID, KindProperty, ListOptions{})
	assert.ErrorContains(t, err, "failed to list property")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CorruptAttributes(t *testing.T) {
	store, mock := setupMockStore(t)
	tenantID, id := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT id, tenant_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "kind", "attributes", "version", "created_by", "created_at", "updated_at"}).
			AddRow(id.String(), tenantID.String(), "task", []byte(`{not json`), 1, "u", storeNow(), storeNow()))

	_, err := store.Get(context.Background(), tenantID, KindTask, id)
	assert.ErrorContains(t, err, "corrupt attributes")
}
