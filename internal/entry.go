// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/openme/internal/api"
	"github.com/starford/openme/internal/configwatch"
	"github.com/starford/openme/internal/guard"
	"github.com/starford/openme/internal/letters"
	"github.com/starford/openme/internal/mailer"
	"github.com/starford/openme/internal/maintenance"
	"github.com/starford/openme/internal/mcpserver"
	"github.com/starford/openme/internal/metrics"
	"github.com/starford/openme/internal/sse"
	"github.com/starford/openme/internal/storage"
	pkgconfig "github.com/starford/openme/pkg/config"
)

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// openLetters loads the seed letters, opens the configured backend and wraps
// it in the letter service. The caller closes the returned backend.
func openLetters(cfg *Config, logger *slog.Logger) (storage.Backend, *letters.Service, error) {
	seed, err := letters.LoadSeed(cfg.Store.SeedDir, time.Now())
	if err != nil {
		return nil, nil, fmt.Errorf("load seed letters: %w", err)
	}

	var backend storage.Backend
	switch cfg.Store.Driver {
	case StoreDriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLite.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := storage.OpenSQLite(cfg.Store.SQLite.Path, cfg.Store.CollectionName())
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		backend = db
	case StoreDriverPebble:
		db, err := storage.OpenPebble(cfg.Store.Pebble.Dir, cfg.Store.CollectionName())
		if err != nil {
			return nil, nil, fmt.Errorf("init pebble store: %w", err)
		}
		backend = db
	default:
		backend = storage.NewMemory(seed)
		logger.Warn("Letter store is in memory; CMS writes are lost on restart")
	}

	svc := letters.NewService(backend, seed,
		letters.WithTimeout(cfg.Store.Timeout),
		letters.WithLogger(logger))
	return backend, svc, nil
}

func loadApplication(opts []Option) (*application, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Run starts the HTTP API with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := loadApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("collection", cfg.Store.CollectionName()),
		slog.Int("allowed_origins", len(cfg.CORS.Origins())),
		slog.String("log_level", cfg.App.LogLevel.String()))

	backend, svc, err := openLetters(cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	g := guard.New(cfg.CORS.Origins(), cfg.CMS.AdminToken, guard.NewLimiter(nil), logger)
	if cfg.CMS.AdminToken == "" {
		logger.Warn("CMS admin token is not configured; letter updates are disabled")
	}

	sender := mailer.New(cfg.Mail.Mailer())

	broker := sse.NewBroker()
	defer broker.Close()
	if cfg.Metrics.Enabled {
		if err := metrics.RegisterStreams(broker.ClientCount, broker.Dropped); err != nil {
			logger.Warn("stream metrics not registered", slog.String("error", err.Error()))
		}
	}

	h := api.NewHandler(svc, g, sender,
		api.WithPublisher(broker),
		api.WithLimits(cfg.RateLimits()),
		api.WithEmergencyRecipient(cfg.Emergency.RecipientEmail),
		api.WithLogger(logger))

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.Metrics.Enabled {
		r.Use(metrics.InstrumentHandler)
		r.Handle("/metrics", metrics.Handler())
	}

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.Ping(req.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api, including the SSE endpoint.
	r.Mount("/api", api.NewRouter(h, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: cfg.App.HTTP.ReadTimeout,
		ReadTimeout:       cfg.App.HTTP.ReadTimeout,
		WriteTimeout:      cfg.App.HTTP.WriteTimeout,
	}

	scheduler, err := maintenance.New(cfg.Maintenance.Schedule, logger,
		maintenance.Job{Name: "limiter-sweep", Run: func(context.Context) error {
			if n := g.Limiter().Sweep(); n > 0 {
				logger.Debug("expired rate-limit buckets swept", slog.Int("removed", n))
			}
			return nil
		}},
		maintenance.Job{Name: "store-ping", Run: svc.Ping},
	)
	if err != nil {
		return err
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, gCtx := errgroup.WithContext(runCtx)

	// Hot-reload the allow-list and admin token.
	if app.configPath != "" {
		eg.Go(func() error {
			err := configwatch.Watch(gCtx, app.configPath, configwatch.DefaultDebounce, logger, func() {
				next := NewDefaultConfig()
				if _, err := pkgconfig.LoadOptional(app.configPath, DefaultConfigYAML, next); err != nil {
					logger.Error("Config reload failed", slog.String("error", err.Error()))
					return
				}
				g.SetAllowedOrigins(next.CORS.Origins())
				g.SetAdminToken(next.CMS.AdminToken)
				logger.Info("Config reloaded", slog.Int("allowed_origins", len(next.CORS.Origins())))
			})
			if err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	eg.Go(func() error {
		return scheduler.Run(gCtx)
	})

	// Start HTTP server.
	eg.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	eg.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Open event streams would otherwise hold Shutdown until its deadline.
		broker.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		cancel()
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the letter tools over stdio until ctx is cancelled or stdin
// closes. Logs go to stderr because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := loadApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	backend, svc, err := openLetters(cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("MCP server starting on stdio", slog.String("store_driver", cfg.Store.Driver))
	if err := mcpserver.New(svc, nil).Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
