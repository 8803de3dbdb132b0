package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chet-im/chet/internal/archive"
	"github.com/chet-im/chet/internal/bus"
	"github.com/chet-im/chet/internal/cache"
	"github.com/chet-im/chet/internal/config"
	"github.com/chet-im/chet/internal/engine"
	"github.com/chet-im/chet/internal/lock"
	"github.com/chet-im/chet/internal/logging"
	"github.com/chet-im/chet/internal/scroll"
	"github.com/chet-im/chet/internal/session"
	"github.com/chet-im/chet/internal/status"
	"github.com/chet-im/chet/internal/tui"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	SessionName string
	ServerURL   string // optional override; empty = use config.toml
}

// Module returns the fx module for the client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chet",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideArchive,
			provideCache,
			provideEngine,
			provideScrollController,
			provideTUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideArchive(p Params, logger *zap.Logger) (*archive.DB, error) {
	dbPath := session.ArchivePath(p.SessionName)
	db, err := archive.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCache(b *bus.Bus) *cache.Cache {
	return cache.New(b)
}

func provideEngine(p Params, c *cache.Cache, m *status.Machine, db *archive.DB, b *bus.Bus, logger *zap.Logger) (*engine.Engine, error) {
	serverURL := p.ServerURL
	if serverURL == "" {
		cfg, err := config.Load(session.ConfigPath())
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		serverURL = cfg.ServerURL
	}
	if serverURL == "" {
		return nil, fmt.Errorf("no server_url configured in %s", session.ConfigPath())
	}

	tokens := &config.TokenSource{Path: session.ConfigPath()}
	return engine.New(engine.Config{ServerURL: serverURL}, tokens, c, m, db, b, logger), nil
}

func provideScrollController(e *engine.Engine, c *cache.Cache, logger *zap.Logger) *scroll.Controller {
	return scroll.New(e, c, logger)
}

func provideTUI(p Params, e *engine.Engine, c *cache.Cache, ctrl *scroll.Controller, db *archive.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger) *tui.App {
	return tui.NewApp(e, c, ctrl, db, m, b, logger, p.SessionName)
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, ui *tui.App, e *engine.Engine, db *archive.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			e.Start(context.Background())

			// The TUI blocks until the user quits; exiting it shuts
			// down the whole app.
			go func() {
				if err := ui.Run(); err != nil {
					logger.Error("tui error", zap.Error(err))
				}
				_ = shutdowner.Shutdown()
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			ui.Stop()
			e.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing archive", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
