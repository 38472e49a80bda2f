package repomanager

import (
	"context"
	"database/sql"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/dbx"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/repositories/changes"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/repositories/syncmeta"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/repositories/tombstones"
)

// RepositoryManager vends repository implementations bound to a DBTX, so the
// same constructor set works whether the caller holds a connection or a
// transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Changes(db dbx.DBTX) changes.Repository
	Tombstones(db dbx.DBTX) tombstones.Repository
	SyncMeta(db dbx.DBTX) syncmeta.Repository
}
