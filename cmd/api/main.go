package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/cors"

	"github.com/devmesh/backend/internal/accounts"
	"github.com/devmesh/backend/internal/auth"
	"github.com/devmesh/backend/internal/config"
	"github.com/devmesh/backend/internal/database"
	"github.com/devmesh/backend/internal/handlers"
	"github.com/devmesh/backend/internal/mailbox"
	"github.com/devmesh/backend/internal/memstore"
	"github.com/devmesh/backend/internal/middleware"
	"github.com/devmesh/backend/internal/properties"
	"github.com/devmesh/backend/internal/registry"
	"github.com/devmesh/backend/internal/router"
	"github.com/devmesh/backend/internal/services"
)

func main() {
	cfgPath := config.ResolvePath(os.Getenv(config.EnvConfigPath))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Invalid configuration", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		slog.Error("Unable to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer st.close()

	// Accounts & root bootstrap
	creds := auth.NewCredentials(cfg.Auth.BcryptCost)
	directory := accounts.NewDirectory(st.accounts, creds, logger)

	rootPassword, isDefault := cfg.AdminPassword()
	if isDefault {
		slog.Warn("Root account uses the built-in default password; set ADMIN_PASSWORD before exposing the server")
	}
	if _, err := directory.EnsureRoot(ctx, rootPassword); err != nil {
		slog.Error("Failed to ensure root account", "error", err)
		os.Exit(1)
	}

	// Coordination
	pending := mailbox.New()
	coordinator := services.NewCoordinator(
		directory,
		registry.NewRegistry(st.devices, logger),
		properties.NewService(st.properties),
		pending,
		cfg.Accounts.OpenRegistration,
		logger,
	)

	ctrlHandler := handlers.NewControllerHandler(coordinator, logger)
	healthHandler := &handlers.HealthHandler{Store: st.pinger, Mailbox: pending, Logger: logger}
	apiRouter := router.New(ctrlHandler, healthHandler)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle("/healthz", apiRouter)
	RegisterDeviceRoutes(mux, handlers.NewDeviceHandler(coordinator, logger))

	handler := middleware.Chain(mux,
		middleware.RequestID,
		middleware.AccessLog(logger),
		middleware.Recover(logger),
		middleware.MaxBody(cfg.Server.MaxBodyBytes),
	)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.HeaderRequestID},
		ExposedHeaders: []string{middleware.HeaderRequestID},
	}).Handler(handler)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           corsHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr, "store", cfg.Database.Driver)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("Shutting down", "pending_devices", pending.Pending())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	lc := config.Config{Log: cfg}
	level, err := lc.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// stores bundles the persistence backends selected by database.driver.
type stores struct {
	accounts   accounts.Store
	devices    registry.Store
	properties properties.Store
	pinger     handlers.Pinger
	close      func()
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*stores, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("Using in-memory store; all data is lost on restart")
		m := memstore.New()
		return &stores{accounts: m, devices: m, properties: m, pinger: m, close: func() {}}, nil
	}

	pool, err := database.Open(ctx, cfg.URL, database.PoolOptions{
		MaxConns:       cfg.MaxConns,
		ConnectTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to PostgreSQL database successfully!")

	applied, err := database.Migrate(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Schema migrations applied", "count", applied)

	return &stores{
		accounts:   accounts.NewRepository(pool),
		devices:    registry.NewRepository(pool),
		properties: properties.NewRepository(pool),
		pinger:     pool,
		close:      pool.Close,
	}, nil
}
