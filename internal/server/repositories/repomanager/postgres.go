// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/dbx"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/migrations"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/repositories/changes"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/repositories/syncmeta"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/repositories/tombstones"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

// Changes returns a changes.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Changes(db dbx.DBTX) changes.Repository {
	return changes.NewPostgresRepository(db)
}

// Tombstones returns a tombstones.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Tombstones(db dbx.DBTX) tombstones.Repository {
	return tombstones.NewPostgresRepository(db)
}

// SyncMeta returns a syncmeta.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) SyncMeta(db dbx.DBTX) syncmeta.Repository {
	return syncmeta.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
