// Package service holds the API's video operations: submission, status
// lookup and playlist delivery.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/status"
	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/cuongbtq/hls-transcoder/shared/objectstore"
)

var (
	// ErrInvalidSource is returned when no job id can be derived from the source URL
	ErrInvalidSource = errors.New("invalid source url")

	// ErrPlaylistNotReady is returned while the completion marker does not exist
	ErrPlaylistNotReady = errors.New("playlist not ready")
)

// Enqueuer is the producer side of the job queue
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.VideoJob) error
}

type Config struct {
	PresignExpiry time.Duration
}

type VideoService struct {
	queue         Enqueuer
	store         objectstore.Store
	tracker       status.Tracker
	presignExpiry time.Duration
	logger        *slog.Logger
}

func NewVideoService(queue Enqueuer, store objectstore.Store, tracker status.Tracker, config Config, logger *slog.Logger) *VideoService {
	if tracker == nil {
		tracker = status.Noop{}
	}
	if config.PresignExpiry <= 0 {
		config.PresignExpiry = 24 * time.Hour
	}
	return &VideoService{
		queue:         queue,
		store:         store,
		tracker:       tracker,
		presignExpiry: config.PresignExpiry,
		logger:        logger,
	}
}

type SubmitRequest struct {
	SourceURL string
	MaxHeight int
	AudioOnly bool
}

type SubmitResult struct {
	JobID    string
	Status   string
	Enqueued bool
}

// Submit enqueues a job unless it is already complete, tracked or queued
func (s *VideoService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	jobID, err := JobIDFromURL(req.SourceURL)
	if err != nil {
		return nil, err
	}

	job := domain.VideoJob{
		JobID:     jobID,
		SourceURL: req.SourceURL,
		MaxHeight: req.MaxHeight,
		AudioOnly: req.AudioOnly,
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	done, err := s.store.Exists(ctx, domain.MarkerKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to check playlist: %w", err)
	}
	if done {
		s.logger.Info("Video already exists, skipping queue", slog.String("job_id", jobID))
		return &SubmitResult{JobID: jobID, Status: domain.JobStatusCompleted}, nil
	}

	snap, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if snap.Status != "" {
		s.logger.Info("Video already tracked, skipping queue",
			slog.String("job_id", jobID),
			slog.String("status", snap.Status),
		)
		return &SubmitResult{JobID: jobID, Status: snap.Status}, nil
	}

	first, err := s.tracker.MarkQueued(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !first {
		s.logger.Info("Video already queued", slog.String("job_id", jobID))
		return &SubmitResult{JobID: jobID, Status: domain.JobStatusPending}, nil
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		// Let the next submission try again.
		if clearErr := s.tracker.Clear(ctx, jobID); clearErr != nil {
			s.logger.Warn("Failed to clear queued marker",
				slog.String("job_id", jobID),
				slog.String("error", clearErr.Error()),
			)
		}
		return nil, fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}

	if err := s.tracker.SetStatus(ctx, jobID, domain.JobStatusPending); err != nil {
		s.logger.Warn("Failed to set pending status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Video job enqueued",
		slog.String("job_id", jobID),
		slog.String("source_url", req.SourceURL),
	)
	return &SubmitResult{JobID: jobID, Status: domain.JobStatusPending, Enqueued: true}, nil
}

// Status reports completed with progress 1 once the playlist exists, else
// whatever the tracker knows, else unknown.
func (s *VideoService) Status(ctx context.Context, jobID string) (status.Snapshot, error) {
	done, err := s.store.Exists(ctx, domain.MarkerKey(jobID))
	if err != nil {
		return status.Snapshot{}, fmt.Errorf("failed to check playlist: %w", err)
	}
	if done {
		one := 1.0
		return status.Snapshot{Status: domain.JobStatusCompleted, Progress: &one}, nil
	}

	snap, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		return status.Snapshot{}, err
	}
	if snap.Status == "" {
		snap.Status = domain.JobStatusUnknown
	}
	return snap, nil
}

// Playlist returns the stored playlist with every segment line replaced by
// a presigned URL. Lines that fail to presign are kept as they are.
func (s *VideoService) Playlist(ctx context.Context, jobID string) (string, error) {
	body, err := s.store.Get(ctx, domain.MarkerKey(jobID))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return "", ErrPlaylistNotReady
		}
		return "", fmt.Errorf("failed to get playlist: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for i, line := range lines {
		name := strings.TrimSpace(line)
		if !strings.HasSuffix(name, ".ts") {
			continue
		}
		signed, err := s.store.PresignGet(ctx, domain.ObjectKey(jobID, name), s.presignExpiry)
		if err != nil {
			s.logger.Error("Failed to presign segment",
				slog.String("job_id", jobID),
				slog.String("segment", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		lines[i] = signed
	}

	return strings.Join(lines, "\n") + "\n", nil
}

// Clean forgets the tracked state of a job so it can be submitted again.
// Stored artifacts are left alone.
func (s *VideoService) Clean(ctx context.Context, jobID string) error {
	return s.tracker.Clear(ctx, jobID)
}

// JobIDFromURL derives the job id from a video URL: the v query parameter,
// or the path of a youtu.be short link.
func JobIDFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidSource)
	}

	if v := strings.TrimSpace(u.Query().Get("v")); v != "" {
		return v, nil
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "youtu.be" {
		if id := strings.Trim(u.Path, "/"); id != "" && !strings.Contains(id, "/") {
			return id, nil
		}
	}

	return "", fmt.Errorf("%w: no video id in %s", ErrInvalidSource, raw)
}
