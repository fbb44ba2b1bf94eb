package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/hls-transcoder/internal/api/proxy"
	"github.com/cuongbtq/hls-transcoder/internal/api/service"
	"github.com/cuongbtq/hls-transcoder/internal/deadletter"
)

// DeadLetterStore is the ledger used by the dead-letter endpoints
type DeadLetterStore interface {
	List(ctx context.Context, filter deadletter.Filter) ([]deadletter.Entry, error)
	Replay(ctx context.Context, id int64, queue deadletter.Enqueuer) (*deadletter.Entry, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Videos      *service.VideoService
	Proxy       *proxy.Proxy
	Queue       service.Enqueuer
	DeadLetters DeadLetterStore // nil when the database is disabled
	// HealthChecks are probed by /health, keyed by component name
	HealthChecks map[string]func(ctx context.Context) error
}

// VideoHandler handles video submission, status and playback requests
type VideoHandler struct {
	logger *slog.Logger
	videos *service.VideoService
	proxy  *proxy.Proxy
}

// NewVideoHandler creates a new VideoHandler instance
func NewVideoHandler(deps *Dependencies) *VideoHandler {
	return &VideoHandler{
		logger: deps.Logger,
		videos: deps.Videos,
		proxy:  deps.Proxy,
	}
}

// DeadLetterHandler handles dead-letter listing and replay
type DeadLetterHandler struct {
	logger *slog.Logger
	store  DeadLetterStore
	queue  service.Enqueuer
}

// NewDeadLetterHandler creates a new DeadLetterHandler instance
func NewDeadLetterHandler(deps *Dependencies) *DeadLetterHandler {
	return &DeadLetterHandler{
		logger: deps.Logger,
		store:  deps.DeadLetters,
		queue:  deps.Queue,
	}
}
