package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"bulkload/internal/bulkapi"
	"bulkload/internal/config"
	"bulkload/internal/executor"
	"bulkload/internal/models"
	"bulkload/internal/services"
	"bulkload/internal/store"
	"bulkload/internal/store/primary"
)

type App struct {
	Config *config.Config

	RunStore store.RunStore
	Executor *executor.Executor

	// --- Initialized Services ---
	CommandService    *services.CommandService
	ConnectionService *services.ConnectionService
	IngestService     *services.IngestService
	RunService        *services.RunService

	// ProviderFactory builds the REST client for a resolved connection.
	ProviderFactory services.ProviderFactory
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	if err := app.initRunStore(ctx); err != nil {
		return nil, err
	}
	app.initCommandService()
	app.initProviderFactory()
	app.initCoreServices()

	log.Debug("Application initialization complete.")
	return app, nil
}

// Close releases the run store.
func (a *App) Close() error {
	if a.RunStore == nil {
		return nil
	}
	return a.RunStore.Close()
}

// --- Private Helper Methods ---

func (a *App) initRunStore(ctx context.Context) error {
	rs, err := primary.NewPrimaryStore(ctx, a.Config.Database.DSN)
	if err != nil {
		return fmt.Errorf("init run store: %w", err)
	}
	a.RunStore = rs
	return nil
}

func (a *App) initCommandService() {
	env := executor.DefaultEnv()
	for k, v := range a.Config.CLI.Env {
		env[k] = v
	}
	a.Executor = executor.New(env)
	a.CommandService = services.NewCommandService(a.Executor, a.Config.CLI.Timeout)
}

func (a *App) initProviderFactory() {
	cfg := a.Config
	clientCfg := bulkapi.ClientConfig{
		Timeout:   cfg.Bulk.RequestTimeout,
		RateLimit: cfg.Bulk.RateLimit,
		RateBurst: cfg.Bulk.RateBurst,
	}
	a.ProviderFactory = func(conn models.Connection) services.BulkAPIProvider {
		return bulkapi.NewClient(conn, clientCfg)
	}
}

func (a *App) initCoreServices() {
	cfg := a.Config
	configured := models.Connection{
		InstanceURL: cfg.Connection.InstanceURL,
		AccessToken: cfg.Connection.AccessToken,
		APIVersion:  cfg.Connection.APIVersion,
	}
	// The executor already carries cli.env, so per-call env stays empty.
	a.ConnectionService = services.NewConnectionService(a.CommandService, cfg.CLI.Bin, nil, configured, cfg.Connection.TargetOrg)
	a.IngestService = a.NewIngestService(a.IngestConfig())
	a.RunService = services.NewRunService(a.RunStore)
}

// IngestConfig returns the pipeline settings from the bulk config section.
func (a *App) IngestConfig() services.IngestConfig {
	cfg := a.Config
	return services.IngestConfig{
		PollInterval:         cfg.Bulk.PollInterval,
		PollTimeout:          cfg.Bulk.PollTimeout,
		ColumnDelimiter:      cfg.Bulk.ColumnDelimiter,
		LineEnding:           cfg.Bulk.LineEnding,
		AbortOnUploadFailure: cfg.Bulk.AbortOnUploadFailure,
	}
}

// NewIngestService builds an orchestrator sharing the app's connection, client and store
// but with its own pipeline settings.
func (a *App) NewIngestService(ic services.IngestConfig) *services.IngestService {
	return services.NewIngestService(a.ConnectionService, a.ProviderFactory, a.RunStore, ic)
}
