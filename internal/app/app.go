package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sketchbook/internal/canvas"
	"sketchbook/internal/config"
	"sketchbook/internal/service"
	"sketchbook/internal/storage"
)

// App wires storage, the canvas and the sync services together.
// Exported methods are the operations the editing surface may call.
type App struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger
	emitter service.EventEmitter

	backend *storage.Backend
	canvas  *canvas.Document
	session *service.SyncController
	pages   *service.PageListCoordinator
	pruner  *service.RevisionPruner
}

// New creates a new App. cfgPath may be empty when cfg is not backed by a file.
func New(cfgPath string, cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfgPath: cfgPath,
		cfg:     cfg,
		logger:  logger,
		emitter: service.LogEmitter{Logger: logger},
	}
}

// Startup opens the configured store and starts the editing session.
func (a *App) Startup(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	backend, err := storage.Open(a.ctx, a.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.backend = backend
	a.logger.Info("database opened", "backend", backend.Kind)

	a.canvas = canvas.New()
	a.session = service.NewSyncController(service.SyncConfig{
		Canvas:       a.canvas,
		Pages:        backend.Pages,
		Revisions:    backend.Revisions,
		Emitter:      a.emitter,
		Logger:       a.logger,
		Timings:      timingsFrom(a.cfg),
		WriteTimeout: a.cfg.Sync.WriteTimeout,
	})
	a.pages = service.NewPageListCoordinator(backend.Pages, a.session, a.emitter, a.logger)

	if backend.Revisions != nil {
		pruner, err := service.NewRevisionPruner(backend.Revisions, a.cfg.Revisions.Keep,
			a.cfg.Revisions.PruneSchedule, a.emitter, a.logger)
		if err != nil {
			a.Shutdown(context.Background())
			return err
		}
		if err := pruner.Start(); err != nil {
			a.Shutdown(context.Background())
			return err
		}
		a.pruner = pruner
	}

	if a.cfgPath != "" {
		if err := config.Watch(a.ctx, a.cfgPath, a.logger, a.applyConfig); err != nil {
			a.logger.Warn("config hot reload disabled", "error", err)
		}
	}
	return nil
}

// Shutdown stops the session without flushing pending writes, then closes
// the canvas and the store.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	var errs []error
	if a.pruner != nil {
		a.pruner.Stop(ctx)
	}
	if a.session != nil {
		errs = append(errs, a.session.Close(ctx))
	}
	if a.canvas != nil {
		a.canvas.Close()
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	return errors.Join(errs...)
}

// Emitter is where the services publish their events.
func (a *App) Emitter() service.EventEmitter {
	return a.emitter
}

// applyConfig takes the settings that can change while running.
// The database DSN is only read at startup.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg.Database.DSN != a.cfg.Database.DSN {
		a.logger.Warn("database.dsn changed; restart to apply")
	}
	a.session.SetTimings(timingsFrom(cfg))
	if a.pruner != nil {
		a.pruner.SetKeep(cfg.Revisions.Keep)
	}
	a.cfg = cfg
}

func timingsFrom(cfg *config.Config) service.SyncTimings {
	return service.SyncTimings{
		ContentQuiet: cfg.Sync.ContentQuiet,
		TitleQuiet:   cfg.Sync.TitleQuiet,
		SettleDelay:  cfg.Sync.SettleDelay,
	}
}
