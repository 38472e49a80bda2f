// Package server initializes and runs the sync server: it opens the
// database, runs migrations, wires the ledger engine, the blob signer and
// the HTTP API, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/blobstore"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/cache"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/config"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/conflict"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/httpapi"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/ledger"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/repositories/repomanager"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *redis.Client
	ledger  *ledger.Service
	sweeper *ledger.Sweeper
	router  http.Handler
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var redisClient *redis.Client
	var counts ledger.CountsCache
	if c.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		counts = cache.NewRedisCountsCache(redisClient)
	}

	resolver := conflict.NewResolver(c.ConflictTolerance)
	ledgerService := ledger.NewService(db, repos, resolver, counts, logger)
	sweeper := ledger.NewSweeper(ledgerService, c.SweepInterval, logger)

	blobs := blobstore.NewService(c)
	handler := httpapi.NewHandler(ledgerService, blobs, logger)
	router := httpapi.NewRouter(handler, []byte(c.SecretKey), logger)

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		redis:   redisClient,
		ledger:  ledgerService,
		sweeper: sweeper,
		router:  router,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting sync server", "addr", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)
	app.sweeper.Start(ctx)

	server := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		app.logger.Error(ctx, "server error", "error", err)
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err)
	}

	app.sweeper.Stop()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(shutdownCtx, "redis close error", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}

	app.logger.Info(shutdownCtx, "server stopped")
}
