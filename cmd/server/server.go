package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/twitter-mcp/internal/api"
	"github.com/ashureev/twitter-mcp/internal/config"
	"github.com/ashureev/twitter-mcp/internal/domain"
	"github.com/ashureev/twitter-mcp/internal/gateway"
	"github.com/ashureev/twitter-mcp/internal/health"
	"github.com/ashureev/twitter-mcp/internal/metrics"
	"github.com/ashureev/twitter-mcp/internal/middleware"
	"github.com/ashureev/twitter-mcp/internal/session"
	"github.com/ashureev/twitter-mcp/internal/store"
	"github.com/ashureev/twitter-mcp/internal/tools"
	"github.com/ashureev/twitter-mcp/internal/twitter"
)

const auditTimeout = 2 * time.Second

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// auditHooks mirror registry changes into metrics and the session audit table.
func auditHooks(repo store.Repository, logger *slog.Logger) session.Hooks {
	return session.Hooks{
		OnCreate: func(s *session.Session) {
			metrics.SessionOpened(s.Transport)
			ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
			defer cancel()
			rec := &domain.SessionRecord{ID: s.ID, Transport: s.Transport, RemoteIP: s.RemoteIP, CreatedAt: s.CreatedAt}
			if err := repo.RecordSessionOpened(ctx, rec); err != nil {
				logger.Warn("Failed to record session", "session_id", s.ID, "error", err)
			}
		},
		OnEvict: func(s *session.Session) {
			metrics.SessionClosed(s.Transport)
			ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
			defer cancel()
			if err := repo.RecordSessionClosed(ctx, s.ID, time.Now()); err != nil {
				logger.Warn("Failed to record session close", "session_id", s.ID, "error", err)
			}
		},
	}
}

//nolint:gocyclo // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(parent context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "transports", cfg.Transports, "stateless", cfg.Stateless)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(parent); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	if n, err := repo.CloseOpenSessions(parent, time.Now()); err != nil {
		return fmt.Errorf("close stale sessions: %w", err)
	} else if n > 0 {
		slog.Info("Closed sessions left open by a previous run", "count", n)
	}
	slog.Info("Database connected")

	factory := twitter.NewFactory(twitter.Config{
		ConsumerKey:    cfg.Twitter.APIKey,
		ConsumerSecret: cfg.Twitter.APISecret,
		BaseURL:        cfg.Twitter.BaseURL,
		UploadURL:      cfg.Twitter.UploadURL,
		Timeout:        cfg.Twitter.Timeout,
		Logger:         logger,
	})
	dispatcher, err := tools.NewDispatcher(factory, repo, logger)
	if err != nil {
		return fmt.Errorf("initialize tools: %w", err)
	}

	reg := session.NewRegistry(logger, auditHooks(repo, logger))
	protocol := gateway.NewProtocol(dispatcher, gateway.ServerInfo{Name: "twitter-mcp", Version: version}, logger)
	gateways := gateway.New(cfg, gateway.OptionsFromConfig(cfg, reg, protocol, logger))

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	for _, g := range gateways {
		g.RegisterRoutes(r)
		slog.Info("Transport enabled", "transport", g.Name())
	}
	api.NewHandler(repo, reg).RegisterRoutes(r)
	r.Handle("/metrics", metrics.Handler())

	// SSE and websocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartIdleSweeper(ctx, reg, cfg.Session.IdleTTL, cfg.Session.SweepInterval)

	var healthSrv *health.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("listen for gRPC health: %w", err)
		}
		healthSrv = health.NewServer(repo, 0, logger)
		go healthSrv.Run(ctx)
		go func() {
			if err := healthSrv.Serve(lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	// Open streams would hold Shutdown until the timeout.
	if n := reg.CloseAll(); n > 0 {
		slog.Info("Closed live sessions", "count", n)
	}
	if healthSrv != nil {
		healthSrv.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
