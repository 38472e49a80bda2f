package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/config"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/sync"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
)

// App is the sync agent: a local replica plus a background worker keeping it
// converged with the server.
type App struct {
	config *config.Config
	logger logging.Logger
	repos  *Repositories
	worker *sync.Worker
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	repos, err := InitDatabase(context.Background(), c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	deviceID, err := os.Hostname()
	if err != nil {
		deviceID = "unknown-device"
	}

	transport := sync.NewAPIClient(c.ServerEndpointAddr, c.AuthToken)
	service := sync.NewService(transport, repos.Records, repos.Queue, repos.SyncState, deviceID, logger)
	worker := sync.NewWorker(service, c.SyncInterval, logger)

	return &App{
		config: c,
		logger: logger,
		repos:  repos,
		worker: worker,
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

	app.logger.Info(ctx, "starting sync agent",
		"server", app.config.ServerEndpointAddr, "interval", app.config.SyncInterval)

	app.initSignalHandler(cancelFunc)
	app.worker.Start(ctx)

	<-ctx.Done()

	app.logger.Info(ctx, "shutting down")
	app.worker.Stop()

	if err := app.repos.DB.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}

	app.logger.Info(context.Background(), "agent stopped")
}
