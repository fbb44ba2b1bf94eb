package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/hls-transcoder/internal/api/handler"
	"github.com/cuongbtq/hls-transcoder/internal/api/proxy"
	"github.com/cuongbtq/hls-transcoder/internal/api/router"
	"github.com/cuongbtq/hls-transcoder/internal/api/service"
	"github.com/cuongbtq/hls-transcoder/internal/bootstrap"
	"github.com/cuongbtq/hls-transcoder/internal/config"
	"github.com/cuongbtq/hls-transcoder/internal/deadletter"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	appLogger = appLogger.WithAttrs(slog.String("service", "api"))

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	res, err := bootstrap.Open(context.Background(), cfg, bootstrap.Options{ObjectStore: true}, appLogger.Logger)
	if err != nil {
		return err
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if err := res.Close(); err != nil {
			appLogger.Warn("Failed to close resources", slog.String("error", err.Error()))
		}
	}
	defer cleanup()

	deps := &handler.Dependencies{
		Logger: appLogger.Logger,
		Videos: service.NewVideoService(res.Queue, res.Store, res.Tracker(&cfg.Status), service.Config{
			PresignExpiry: cfg.Storage.PresignExpiry,
		}, appLogger.Logger),
		Proxy: proxy.New(proxy.Config{
			UserAgent:             cfg.Proxy.UserAgent,
			ProbeTimeout:          cfg.Proxy.ProbeTimeout,
			ResponseHeaderTimeout: cfg.Proxy.ResponseHeaderTimeout,
		}, appLogger.Logger),
		Queue:        res.Queue,
		HealthChecks: res.HealthChecks(),
	}

	if res.DB != nil {
		storage := deadletter.NewStorage(res.DB.GetDB(), appLogger.Logger)
		if err := storage.Migrate(context.Background()); err != nil {
			return fmt.Errorf("failed to migrate dead-letter ledger: %w", err)
		}
		deps.DeadLetters = storage
	}

	// Initialize router
	r := initRouter(cfg.App.Environment, deps)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		appLogger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		return err
	}

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.String("error", err.Error()),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
