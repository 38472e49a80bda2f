package syncstate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/models"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_state (
  data_type TEXT PRIMARY KEY,
  last_sync_at TIMESTAMP NOT NULL,
  server_version INTEGER NOT NULL DEFAULT 0,
  updated_at TIMESTAMP NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func TestGet_BeforeFirstSync(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.Get(context.Background(), "contacts")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSetGet_Roundtrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Set(ctx, &models.SyncState{
		DataType:      "contacts",
		LastSyncAt:    at,
		ServerVersion: 7,
		UpdatedAt:     at,
	}))

	got, err := r.Get(ctx, "contacts")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ServerVersion)
	assert.True(t, got.LastSyncAt.Equal(at))

	// a later checkpoint replaces the row
	later := at.Add(time.Hour)
	require.NoError(t, r.Set(ctx, &models.SyncState{
		DataType:      "contacts",
		LastSyncAt:    later,
		ServerVersion: 9,
		UpdatedAt:     later,
	}))

	got, err = r.Get(ctx, "contacts")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ServerVersion)
	assert.True(t, got.LastSyncAt.Equal(later))
}

func TestSet_PerDataType(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Set(ctx, &models.SyncState{DataType: "contacts", LastSyncAt: at, ServerVersion: 3, UpdatedAt: at}))
	require.NoError(t, r.Set(ctx, &models.SyncState{DataType: "signatures", LastSyncAt: at, ServerVersion: 5, UpdatedAt: at}))

	got, err := r.Get(ctx, "signatures")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ServerVersion)
}
