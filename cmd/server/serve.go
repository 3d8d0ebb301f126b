package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/ppttools/internal/auth"
	"github.com/example/ppttools/internal/config"
	"github.com/example/ppttools/internal/handlers"
	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/logging"
	"github.com/example/ppttools/internal/middleware"
	"github.com/example/ppttools/internal/processors"
	"github.com/example/ppttools/internal/selection"
	"github.com/example/ppttools/internal/storage"
	"github.com/example/ppttools/internal/tool"
	"github.com/example/ppttools/internal/workspace"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(settings.Log.Level, settings.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(settings, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

// app wires every component of the server
type app struct {
	settings *config.Settings
	logger   *zap.Logger

	leases   *lease.Manager
	pool     *processors.WorkerPool
	registry *workspace.Registry
	hub      *handlers.WebSocketHub
	auth     *auth.Manager
	server   *http.Server
}

func newApp(settings *config.Settings, logger *zap.Logger) (*app, error) {
	if err := settings.EnsureUIDir(); err != nil {
		return nil, err
	}

	factory := storage.NewFactory(logger)
	provider, err := factory.Create(settings.Storage.Provider, settings.StorageOptions())
	if err != nil {
		return nil, err
	}
	leases := lease.NewManager(provider, logger)

	if err := processors.SetLicenseKey(settings.Processing.UnidocKey); err != nil {
		logger.Warn("presentation inspection disabled", zap.Error(err))
		settings.Features.EnableInspector = false
	}

	svc := processors.NewService(leases,
		processors.WithDelay(settings.ProcessingDelay()),
		processors.WithMergedFileName(settings.Processing.MergedFileName),
		processors.WithLogger(logger))
	pool := processors.NewWorkerPool(settings.Workers.Count, settings.Workers.QueueSize, logger)

	toolOpts := []tool.Option{tool.WithSubmitter(pool)}
	if settings.Features.EnableInspector {
		toolOpts = append(toolOpts, tool.WithInspector(processors.NewInspector(logger)))
	}
	registry := workspace.NewRegistry(svc, leases, workspace.Config{
		TTL:    settings.WorkspaceTTL(),
		Accept: selection.ParseAccept(settings.Processing.Accept),
	}, logger, toolOpts...)

	origins := middleware.ParseOrigins(settings.Server.AllowedOrigins)

	a := &app{
		settings: settings,
		logger:   logger,
		leases:   leases,
		pool:     pool,
		registry: registry,
	}

	if settings.Features.EnableWebSocket {
		a.hub = handlers.NewWebSocketHub(func(id, owner string) bool {
			_, err := registry.Get(id, owner)
			return err == nil
		}, origins, logger)
		registry.OnCreate(a.hub.Watch)
	}

	routerCfg := handlers.RouterConfig{UIDir: settings.Server.UIDir}
	if settings.Features.EnableAuth {
		a.auth = auth.NewManager(auth.Config{
			ClientID:      settings.Auth.GoogleClientID,
			ClientSecret:  settings.Auth.GoogleClientSecret,
			RedirectURL:   settings.Auth.OAuthRedirectURL,
			SessionExpiry: time.Duration(settings.Auth.SessionHours) * time.Hour,
		}, logger)
		routerCfg.Protect = a.auth.RequireAuth
		routerCfg.Extra = auth.NewHandler(a.auth, settings.Server.CertFile != "").Register
		logger.Info("authentication enabled", zap.String("redirectURL", settings.Auth.OAuthRedirectURL))
	}

	api := handlers.NewServer(handlers.Options{
		Registry:  registry,
		Leases:    leases,
		Storage:   factory,
		Pool:      pool,
		Hub:       a.hub,
		MaxUpload: settings.Server.MaxUploadMB << 20,
		Logger:    logger,
	})

	handler := middleware.Chain(api.NewRouter(routerCfg),
		middleware.Logger(logger),
		middleware.RequestID(),
		middleware.CORS(origins),
		middleware.Recover(logger),
	)

	a.server = &http.Server{
		Addr:              settings.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// run serves until ctx is cancelled or the listener fails, then shuts down
func (a *app) run(ctx context.Context) error {
	s := a.settings
	a.logger.Info("server starting",
		zap.String("version", version),
		zap.String("addr", a.server.Addr),
		zap.String("storage", storage.Canonical(s.Storage.Provider)),
		zap.Duration("delay", s.ProcessingDelay()),
		zap.Int("workers", s.Workers.Count))

	go a.registry.Run(ctx, s.SweepInterval())
	if a.auth != nil {
		go a.auth.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if s.Server.CertFile != "" {
			errCh <- a.server.ListenAndServeTLS(s.Server.CertFile, s.Server.KeyFile)
			return
		}
		errCh <- a.server.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout())
	defer cancel()
	a.shutdown(shutdownCtx)
	return serveErr
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("server forced to shutdown", zap.Error(err))
	}
	if a.hub != nil {
		a.hub.Shutdown()
	}
	a.registry.Close(ctx)
	a.pool.Stop()
	if n := a.leases.RevokeAll(ctx); n > 0 {
		a.logger.Info("revoked leftover leases", zap.Int("count", n))
	}
	a.logger.Info("server shutdown complete", zap.Any("leases", a.leases.Stats()))
}
