package main

import (
	"context"

	"github.com/Dompi123/FOMO2025PART4/internal/config"
	"github.com/Dompi123/FOMO2025PART4/internal/connectivity"
	"github.com/Dompi123/FOMO2025PART4/internal/gateway"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/store"
	syncengine "github.com/Dompi123/FOMO2025PART4/internal/sync"
)

// app wires the sync core from configuration.
type app struct {
	cfg     *config.Config
	store   *store.SQLiteStore
	client  *gateway.Client
	monitor *connectivity.Monitor
	manager *syncengine.Manager
	engine  syncengine.SyncEngineInterface
}

// newApp builds the components. The monitor starts offline; callers probe
// with CheckNow or start the probe loop.
func newApp(cfg *config.Config) *app {
	client := gateway.NewClient(gateway.Config{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		Timeout:    cfg.API.Timeout,
		HealthPath: cfg.API.HealthPath,
	})
	monitor := connectivity.NewMonitor(client, connectivity.Options{
		ProbeInterval: cfg.Connectivity.ProbeInterval,
		ProbeTimeout:  cfg.Connectivity.ProbeTimeout,
	})
	st := store.NewSQLiteStore(cfg.Store.Path)
	manager := syncengine.NewManager(st, client, monitor, managerOptions(cfg.Sync))

	return &app{
		cfg:     cfg,
		store:   st,
		client:  client,
		monitor: monitor,
		manager: manager,
		engine:  manager,
	}
}

func managerOptions(c config.SyncConfig) syncengine.Options {
	return syncengine.Options{
		MaxRetries:     c.MaxRetries,
		BaseRetryDelay: c.BaseRetryDelay,
		MaxRetryDelay:  c.MaxRetryDelay,
		Interval:       c.Interval,
		MaxErrors:      c.MaxErrors,
		SweepTimeout:   c.SweepTimeout,
		ReconcileRetry: gateway.DefaultRetryPolicy,
	}
}

func loggerConfig(c config.LoggingConfig) logging.Config {
	return logging.Config{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}

// start initializes the engine.
func (a *app) start(ctx context.Context) error {
	return a.engine.Init(ctx)
}

// close stops the engine and releases the database.
func (a *app) close() {
	a.monitor.Stop()
	a.engine.Cleanup()
	if err := a.store.Close(); err != nil {
		logging.Warn("Failed to close store", map[string]interface{}{"error": err.Error()})
	}
}
