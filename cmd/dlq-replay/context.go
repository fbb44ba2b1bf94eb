package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cuongbtq/hls-transcoder/internal/bootstrap"
	"github.com/cuongbtq/hls-transcoder/internal/config"
	"github.com/cuongbtq/hls-transcoder/internal/deadletter"
	"github.com/cuongbtq/hls-transcoder/shared/logger"
	"github.com/joho/godotenv"
)

// ledger is the part of the dead-letter storage the commands use
type ledger interface {
	List(ctx context.Context, filter deadletter.Filter) ([]deadletter.Entry, error)
	Replay(ctx context.Context, id int64, queue deadletter.Enqueuer) (*deadletter.Entry, error)
}

// session is what a command needs once connected
type session struct {
	ledger ledger
	queue  deadletter.Enqueuer
	close  func() error
}

type commandContext struct {
	configFlag string
	verbose    bool

	// open connects to the ledger and the queue; replaced in tests
	open func(ctx context.Context) (*session, error)
}

func newCommandContext() *commandContext {
	c := &commandContext{}
	c.open = c.connect
	return c
}

func (c *commandContext) configPath() string {
	if path := strings.TrimSpace(c.configFlag); path != "" {
		return path
	}
	if path := os.Getenv("WORKER_SERVICE_CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/worker-service/config.yaml"
}

func (c *commandContext) connect(ctx context.Context) (*session, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(c.configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateReplayConfig(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := "warn"
	if c.verbose {
		level = "debug"
	}
	appLogger := logger.NewStderr(level)

	// Replays only enqueue; no status keys are written.
	cfg.Status.Enabled = false
	res, err := bootstrap.Open(ctx, cfg, bootstrap.Options{}, appLogger.Logger)
	if err != nil {
		return nil, err
	}

	storage := deadletter.NewStorage(res.DB.GetDB(), appLogger.Logger)
	if err := storage.Migrate(ctx); err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("failed to migrate dead-letter ledger: %w", err)
	}

	return &session{
		ledger: storage,
		queue:  res.Queue,
		close:  res.Close,
	}, nil
}
