package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/cuongbtq/hls-transcoder/internal/worker/pipeline"
	"github.com/cuongbtq/hls-transcoder/internal/worker/queue"
	"github.com/cuongbtq/hls-transcoder/shared/objectstore"
)

// runJob converts a panic anywhere in the job into an infrastructure failure
func (w *Worker) runJob(ctx context.Context, delivery *queue.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "panic while processing job: %v", r)
		}
	}()
	return w.processJob(ctx, delivery.Job)
}

// processJob checks the completion marker, runs the pipeline and publishes
// the result. The working directory is removed before it returns. With the
// orphan purge enabled, attempts of one job are serialized by the job lease
// and the purge only runs while the lease is held.
func (w *Worker) processJob(ctx context.Context, job domain.VideoJob) error {
	logger := w.logger.With(slog.String("job_id", job.JobID))

	done, err := w.store.Exists(ctx, domain.MarkerKey(job.JobID))
	if err != nil {
		return domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "idempotency check failed: %w", err)
	}
	if done {
		logger.Info("Job already completed, skipping")
		w.setStatus(ctx, job.JobID, domain.JobStatusCompleted)
		return nil
	}

	if w.leaser != nil {
		leaseCtx, release, err := w.holdLease(ctx, job.JobID, logger)
		if err != nil {
			return err
		}
		defer release()
		ctx = leaseCtx

		// The previous holder may have completed the job while this attempt waited.
		done, err := w.store.Exists(ctx, domain.MarkerKey(job.JobID))
		if err != nil {
			return domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "idempotency check failed: %w", err)
		}
		if done {
			logger.Info("Job completed by another attempt, skipping")
			w.setStatus(ctx, job.JobID, domain.JobStatusCompleted)
			return nil
		}

		purged, err := objectstore.DeletePrefix(ctx, w.store, domain.JobPrefix(job.JobID), domain.MarkerKey(job.JobID))
		if err != nil {
			return domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to purge orphaned objects: %w", err)
		}
		if purged > 0 {
			logger.Warn("Purged orphaned objects from an earlier attempt",
				slog.Int("count", purged),
			)
		}
	}

	w.setStatus(ctx, job.JobID, domain.JobStatusProcessing)
	w.setProgress(ctx, job.JobID, 0)

	run, err := w.pipeline.Execute(ctx, pipeline.RequestFor(job))
	if run != nil {
		defer w.cleanup(run)
	}
	if err != nil {
		return err
	}

	result, err := w.publisher.Publish(ctx, job.JobID, run.Dir, func(uploaded, total int) {
		w.setProgress(ctx, job.JobID, float64(uploaded)/float64(total))
	})
	if err != nil {
		return err
	}

	w.setProgress(ctx, job.JobID, 1)
	w.setStatus(ctx, job.JobID, domain.JobStatusCompleted)

	logger.Info("Job completed successfully",
		slog.String("playlist", result.PlaylistKey),
		slog.Int("objects", len(result.Keys)),
	)
	return nil
}

func (w *Worker) setStatus(ctx context.Context, jobID, status string) {
	if err := w.tracker.SetStatus(ctx, jobID, status); err != nil {
		w.logger.Warn("Failed to update job status",
			slog.String("job_id", jobID),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Worker) setProgress(ctx context.Context, jobID string, progress float64) {
	if err := w.tracker.SetProgress(ctx, jobID, progress); err != nil {
		w.logger.Warn("Failed to update job progress",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
