package daemon

import (
	"context"
	"database/sql"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/andrelcx/wamon/internal/api"
	"github.com/andrelcx/wamon/internal/browser"
	"github.com/andrelcx/wamon/internal/bus"
	"github.com/andrelcx/wamon/internal/config"
	"github.com/andrelcx/wamon/internal/detector"
	"github.com/andrelcx/wamon/internal/lock"
	"github.com/andrelcx/wamon/internal/logging"
	"github.com/andrelcx/wamon/internal/monitor"
	"github.com/andrelcx/wamon/internal/session"
	"github.com/andrelcx/wamon/internal/store"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideDB,
			provideStore,
			provideDetector,
			provideBrowserFactory,
			provideMonitor,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	logger.Info("configuration loaded", zap.String("path", session.ConfigPath()))
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideDB(p Params, _ *lock.Lock, logger *zap.Logger) (*sql.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideStore(db *sql.DB, logger *zap.Logger) *store.Store {
	return store.New(db, logger)
}

func provideDetector(cfg *config.Config, logger *zap.Logger) *detector.Detector {
	return detector.New(cfg.Selectors, cfg.Monitor.MinQRLength, logger)
}

func provideBrowserFactory(p Params, cfg *config.Config, logger *zap.Logger) monitor.BrowserFactory {
	return func(ctx context.Context) (monitor.Browser, error) {
		return browser.Launch(ctx, cfg.Browser, session.ProfileDir(p.SessionName), logger)
	}
}

func provideMonitor(cfg *config.Config, det *detector.Detector, st *store.Store, factory monitor.BrowserFactory, b *bus.Bus, logger *zap.Logger) *monitor.Monitor {
	return monitor.New(cfg, det, st, factory, monitor.NoopRecovery{Logger: logger}, b, logger)
}

func provideService(mon *monitor.Monitor, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(mon, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, mon *monitor.Monitor, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := mon.Disconnect(); err != nil {
				logger.Warn("error disconnecting monitor", zap.Error(err))
			}
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
