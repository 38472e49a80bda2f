// Package client hosts the local replica: its SQLite database, repositories
// and the offline sync engine.
package client

import (
	"context"
	"database/sql"
	"log"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/migrations"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/repositories/queue"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/repositories/records"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/repositories/syncstate"
)

// Repositories bundles the local stores behind one database handle.
type Repositories struct {
	Records   records.Repository
	Queue     queue.Repository
	SyncState syncstate.Repository
	DB        *sql.DB
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatal("failed to set goose dialect:", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	repos := &Repositories{
		Records:   records.NewSQLiteRepository(db),
		Queue:     queue.NewSQLiteRepository(db),
		SyncState: syncstate.NewSQLiteRepository(db),
		DB:        db,
	}
	return repos, nil
}
