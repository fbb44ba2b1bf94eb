package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/hls-transcoder/internal/bootstrap"
	"github.com/cuongbtq/hls-transcoder/internal/config"
	"github.com/cuongbtq/hls-transcoder/internal/deadletter"
	"github.com/cuongbtq/hls-transcoder/internal/worker"
	"github.com/cuongbtq/hls-transcoder/internal/worker/pipeline"
	"github.com/cuongbtq/hls-transcoder/internal/worker/publisher"
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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	appLogger = appLogger.WithAttrs(slog.String("service", "worker"))

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", cfg.Worker.ID),
	)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect queue, object store and optional redis/database
	res, err := bootstrap.Open(ctx, cfg, bootstrap.Options{
		ConsumerID:  cfg.Worker.ID,
		Prefetch:    cfg.Worker.Concurrency,
		ObjectStore: true,
	}, appLogger.Logger)
	if err != nil {
		return err
	}

	var ledger worker.Ledger
	if res.DB != nil {
		storage := deadletter.NewStorage(res.DB.GetDB(), appLogger.Logger)
		if err := storage.Migrate(ctx); err != nil {
			_ = res.Close()
			return fmt.Errorf("failed to migrate dead-letter ledger: %w", err)
		}
		ledger = storage
	}

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:   appLogger.Logger,
		Queue:    res.Queue,
		Store:    res.Store,
		Pipeline: pipeline.New(pipelineConfig(&cfg.Pipeline), appLogger.Logger),
		Publisher: publisher.New(res.Store, publisher.Config{
			UploadRetries: cfg.Pipeline.UploadRetries,
			RetryDelay:    cfg.Pipeline.UploadRetryDelay,
		}, appLogger.Logger),
		Tracker:        res.Tracker(&cfg.Status),
		Ledger:         ledger,
		WorkerID:       cfg.Worker.ID,
		Concurrency:    cfg.Worker.Concurrency,
		PurgeOrphans:   cfg.Worker.PurgeOrphans,
		LeaseTTL:       cfg.Worker.LeaseTTL,
		AckTimeout:     cfg.Worker.AckTimeout,
		DequeueBackoff: cfg.Worker.DequeueBackoff,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.String("transport", cfg.Queue.Transport),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.String("error", err.Error()),
		)
		_ = res.Close()
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if err := res.Close(); err != nil {
		appLogger.Warn("Failed to close resources", slog.String("error", err.Error()))
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// pipelineConfig maps the pipeline section, keeping built-in defaults for unset fields
func pipelineConfig(cfg *config.PipelineConfig) pipeline.Config {
	pc := pipeline.DefaultConfig()
	if cfg.FetchBinary != "" {
		pc.FetchBinary = cfg.FetchBinary
	}
	if cfg.EncodeBinary != "" {
		pc.EncodeBinary = cfg.EncodeBinary
	}
	if cfg.WorkDir != "" {
		pc.WorkDir = cfg.WorkDir
	}
	pc.CookiesFile = cfg.CookiesFile
	if cfg.MaxHeight > 0 {
		pc.MaxHeight = cfg.MaxHeight
	}
	if cfg.SegmentSeconds > 0 {
		pc.SegmentSeconds = cfg.SegmentSeconds
	}
	if cfg.GOPSize > 0 {
		pc.GOPSize = cfg.GOPSize
	}
	if cfg.CRF > 0 {
		pc.CRF = cfg.CRF
	}
	if cfg.Preset != "" {
		pc.Preset = cfg.Preset
	}
	if cfg.AudioBitrate != "" {
		pc.AudioBitrate = cfg.AudioBitrate
	}
	pc.Timeout = cfg.Timeout
	if cfg.KillGrace > 0 {
		pc.KillGrace = cfg.KillGrace
	}
	if cfg.StderrLimit > 0 {
		pc.StderrLimit = cfg.StderrLimit
	}
	return pc
}
