package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/saferespawn/internal/audit"
	"github.com/udisondev/saferespawn/internal/bridge"
	"github.com/udisondev/saferespawn/internal/config"
	"github.com/udisondev/saferespawn/internal/cooldown"
	"github.com/udisondev/saferespawn/internal/db"
	"github.com/udisondev/saferespawn/internal/icon"
	"github.com/udisondev/saferespawn/internal/permission"
	"github.com/udisondev/saferespawn/internal/respawn"
	"github.com/udisondev/saferespawn/internal/schedule"
)

const ConfigPath = "config/saferespawn.yaml"

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("SAFERESPAWN_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	var logLevel slog.LevelVar
	logLevel.Set(parseLogLevel(cfg.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: &logLevel,
	})))
	gin.SetMode(gin.ReleaseMode)

	slog.Info("saferespawn starting",
		"config", cfgPath,
		"addr", cfg.HTTP.Addr(),
		"locations", cfg.Respawn.Enabled(),
		"database", cfg.Database.Enabled)

	trackerOpts := []cooldown.Option{}
	var checker permission.Checker = permission.NewStatic(cfg.Permission.GrantAll, cfg.Permission.Players)

	if cfg.Database.Enabled {
		database, err := db.New(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		slog.Info("database connected")

		if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("database migrations applied")

		cooldowns := db.NewCooldownRepository(database.Pool())
		pruned, err := cooldowns.PruneCooldowns(ctx, time.Now().Add(-longestWindow(cfg.Respawn)))
		if err != nil {
			return fmt.Errorf("pruning expired cooldowns: %w", err)
		}
		slog.Info("expired cooldowns pruned", "count", pruned)
		trackerOpts = append(trackerOpts, cooldown.WithStore(cooldowns))

		if cfg.Permission.Source == "database" {
			checker = db.NewPermissionRepository(database.Pool())
		}
	}

	tracker := cooldown.NewTracker(cfg.Respawn.Windows(), trackerOpts...)
	if _, err := tracker.Restore(ctx); err != nil {
		return fmt.Errorf("restoring cooldowns: %w", err)
	}

	perms := permission.NewCache(checker, cfg.Permission.SweepInterval,
		permission.WithTTL(cfg.Permission.CacheTTL))
	host := bridge.New(cfg.HTTP)

	deps := respawn.Deps{
		Host:        host,
		Permissions: perms,
		Scheduler:   schedule.Real{},
		Tracker:     tracker,
	}

	var images bridge.ImageSource
	if cfg.Icons.Enabled {
		lib := registerIcons(ctx, cfg)
		deps.Icons = lib
		images = lib
	}

	if cfg.Audit.Enabled {
		auditLog := audit.NewWriter(cfg.Audit.Dir, cfg.Audit.Prefix)
		defer func() {
			if err := auditLog.Close(); err != nil {
				slog.Error("closing audit log", "error", err)
			}
		}()
		deps.Audit = auditLog
	}

	svc, err := respawn.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("creating respawn service: %w", err)
	}
	host.Bind(svc)

	watcher, err := config.NewWatcher(cfgPath, func(next config.Config) {
		logLevel.Set(parseLogLevel(next.LogLevel))
		svc.ApplyConfig(ctx, next)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "error", err)
		watcher = nil
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           bridge.NewRouter(host, svc, images, perms),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return host.Run(gctx)
	})

	g.Go(func() error {
		if err := perms.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("permission cache: %w", err)
		}
		return nil
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		svc.Shutdown()
		host.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("saferespawn stopped")
	return nil
}

// loadConfig loads path and writes the normalized document back, so a
// missing file or keys added by newer versions show up on disk. It runs
// before the watcher starts and never triggers a reload.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	if err := config.Save(path, cfg); err != nil {
		slog.Warn("config file not rewritten", "path", path, "error", err)
	}
	return cfg, nil
}

// registerIcons downloads configured icons. Failures leave the location on
// the default sprite.
func registerIcons(ctx context.Context, cfg config.Config) *icon.Library {
	lib := icon.NewLibrary(cfg.Icons.FetchTimeout)
	for _, loc := range cfg.Respawn.Enabled() {
		settings, _ := cfg.Respawn.Location(loc)
		if settings.IconURL == "" {
			continue
		}
		if err := lib.Register(ctx, string(loc), settings.IconURL); err != nil {
			slog.Warn("failed to register icon", "location", loc, "error", err)
		}
	}
	return lib
}

func longestWindow(r config.Respawn) time.Duration {
	var longest time.Duration
	for _, w := range r.Windows() {
		longest = max(longest, w)
	}
	return longest
}

// parseLogLevel converts string log level to slog.Level.
// Returns slog.LevelInfo for unknown values.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
