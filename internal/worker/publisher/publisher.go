// Package publisher uploads the artifacts of a finished pipeline run.
//
// Segments are uploaded in ascending numeric order and the playlist is
// uploaded last, only when every segment made it. A reader that can see the
// playlist can therefore fetch every segment it lists.
package publisher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/cuongbtq/hls-transcoder/shared/objectstore"
)

// ProgressFunc is called after each successful upload. total counts the
// segments plus the playlist, so uploaded reaches total only once the
// playlist is visible.
type ProgressFunc func(uploaded, total int)

// Config holds upload retry settings
type Config struct {
	UploadRetries int
	RetryDelay    time.Duration
}

// Result lists what a publish attempt wrote
type Result struct {
	Keys           []string
	FailedSegments []string
	PlaylistKey    string
}

// Publisher writes artifacts to the object store
type Publisher struct {
	store  objectstore.Store
	config Config
	logger *slog.Logger
}

// New creates a publisher
func New(store objectstore.Store, config Config, logger *slog.Logger) *Publisher {
	if config.UploadRetries < 0 {
		config.UploadRetries = 0
	}
	return &Publisher{
		store:  store,
		config: config,
		logger: logger,
	}
}

// Publish uploads the run in dir. A failed segment does not stop the
// remaining segments, but it always withholds the playlist.
func (p *Publisher) Publish(ctx context.Context, jobID, dir string, progress ProgressFunc) (*Result, error) {
	segments, playlist, err := Collect(jobID, dir)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	total := len(segments) + 1
	uploaded := 0

	for _, seg := range segments {
		if err := p.upload(ctx, seg); err != nil {
			p.logger.Error("Failed to upload segment",
				slog.String("job_id", jobID),
				slog.String("key", seg.Key()),
				slog.String("error", err.Error()),
			)
			result.FailedSegments = append(result.FailedSegments, seg.RelativeName)
			continue
		}
		uploaded++
		result.Keys = append(result.Keys, seg.Key())
		if progress != nil {
			progress(uploaded, total)
		}
	}

	if ctx.Err() != nil {
		return result, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "publish interrupted: %w", ctx.Err())
	}

	if len(result.FailedSegments) > 0 {
		return result, domain.Failuref(domain.ReasonPublishPartialFailure,
			"%d of %d segments failed (%s), playlist withheld",
			len(result.FailedSegments), len(segments), strings.Join(result.FailedSegments, ", "))
	}

	// Every segment is stored, so a failure here is the store's alone.
	if err := p.upload(ctx, playlist); err != nil {
		return result, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "playlist upload failed: %w", err)
	}
	uploaded++
	result.Keys = append(result.Keys, playlist.Key())
	result.PlaylistKey = playlist.Key()
	if progress != nil {
		progress(uploaded, total)
	}

	p.logger.Info("Artifacts published",
		slog.String("job_id", jobID),
		slog.Int("segments", len(segments)),
		slog.String("playlist", playlist.Key()),
	)
	return result, nil
}

func (p *Publisher) upload(ctx context.Context, artifact domain.Artifact) error {
	var err error
	for attempt := 0; attempt <= p.config.UploadRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn("Retrying upload",
				slog.String("key", artifact.Key()),
				slog.Int("attempt", attempt+1),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.config.RetryDelay):
			}
		}

		err = p.store.PutFile(ctx, artifact.Key(), artifact.SourcePath, artifact.ContentType())
		if err == nil {
			return nil
		}
	}
	return err
}
