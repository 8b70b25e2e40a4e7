package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imagegate/internal/api"
	"imagegate/internal/config"
	"imagegate/internal/counterstore"
	"imagegate/internal/imageapi"
	"imagegate/internal/logger"
	"imagegate/internal/models"
	"imagegate/internal/observability"
	"imagegate/internal/ratelimit"
	"imagegate/internal/version"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	envFile      = flag.String("env-file", ".env", "Path to a dotenv file loaded before environment overrides")
	writeExample = flag.String("write-example", "", "Write an example configuration file to this path and exit")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	if *writeExample != "" {
		if err := config.SaveExample(*writeExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.LoadWithEnvFile(*configFile, *envFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	buildInfo := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, buildInfo)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	for _, warning := range cfg.Warnings() {
		slog.Warn("Configuration warning", "warning", warning)
	}

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg, buildInfo)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize the counter store
	store, err := initializeStore(cfg, otelProvider, buildInfo)
	if err != nil {
		slog.Error("Failed to initialize counter store", "error", err, "type", cfg.Store.Type)
		os.Exit(1)
	}
	defer store.Close()

	gate, err := initializeGate(cfg, store, otelProvider)
	if err != nil {
		slog.Error("Failed to initialize quota gate", "error", err)
		os.Exit(1)
	}

	images := imageapi.NewClient(cfg.ImageAPI,
		imageapi.WithLogger(log.With("component", "imageapi")),
		imageapi.WithUserAgent(buildInfo.UserAgent()),
	)

	handlerOpts := []api.HandlerOption{
		api.WithStore(store),
		api.WithMaxEditBytes(cfg.ImageAPI.MaxEditBytes),
		api.WithVersion(buildInfo),
	}
	if gate != nil {
		handlerOpts = append(handlerOpts, api.WithGate(gate))
	}
	handlers := api.NewHandlers(images, handlerOpts...)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"store", cfg.Store.Type,
			"quota_enabled", gate != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// initializeStore builds the configured counter store and wraps it with the
// provider's instrumentation when any signal is enabled.
func initializeStore(cfg *models.Config, otelProvider *observability.Provider, buildInfo version.Info) (counterstore.Store, error) {
	factory := counterstore.NewFactory(
		counterstore.WithLogger(slog.Default().With("component", "counterstore")),
		counterstore.WithUserAgent(buildInfo.UserAgent()),
	)
	store, err := factory.Create(cfg.Store)
	if err != nil {
		return nil, err
	}

	instrumented, err := otelProvider.InstrumentStore(store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return instrumented, nil
}

// initializeGate returns nil when quota enforcement is disabled.
func initializeGate(cfg *models.Config, store counterstore.Store, otelProvider *observability.Provider) (*ratelimit.Gate, error) {
	if !cfg.Quota.Enabled {
		slog.Warn("Quota enforcement is disabled; image endpoints are unmetered")
		return nil, nil
	}

	gateOpts := []ratelimit.GateOption{
		ratelimit.WithKeyPrefix(cfg.Quota.KeyPrefix),
		ratelimit.WithLogger(slog.Default().With("component", "ratelimit")),
	}
	observe, err := otelProvider.QuotaObserver()
	if err != nil {
		return nil, err
	}
	if observe != nil {
		gateOpts = append(gateOpts, ratelimit.WithObserver(observe))
	}

	return ratelimit.NewGate(store, ratelimit.NewPolicy(cfg.Quota), gateOpts...)
}
