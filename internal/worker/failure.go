package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/cuongbtq/hls-transcoder/internal/worker/pipeline"
	"github.com/cuongbtq/hls-transcoder/internal/worker/queue"
)

// routeFailure dead-letters a failed job and acknowledges it. Failures are
// never retried automatically; replay is an explicit operator action.
func (w *Worker) routeFailure(ctx context.Context, delivery *queue.Delivery, err error) {
	reason := domain.Classify(err)
	job := delivery.Job

	w.logger.Error("Job failed",
		slog.String("job_id", job.JobID),
		slog.String("reason", string(reason)),
		slog.Bool("permanent", reason.Permanent()),
		slog.String("error", err.Error()),
	)

	// Routing must finish even when the pool is shutting down.
	routeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.ackTimeout)
	defer cancel()

	dl := domain.DeadLetter{
		Job:      job,
		Reason:   reason,
		Detail:   err.Error(),
		FailedAt: time.Now().UTC(),
	}

	if dlErr := w.queue.DeadLetter(routeCtx, dl); dlErr != nil {
		w.logger.Error("Failed to publish dead letter",
			slog.String("job_id", job.JobID),
			slog.String("error", dlErr.Error()),
		)
	}

	if w.ledger != nil {
		if _, ledgerErr := w.ledger.Record(routeCtx, dl); ledgerErr != nil {
			w.logger.Error("Failed to record dead letter",
				slog.String("job_id", job.JobID),
				slog.String("error", ledgerErr.Error()),
			)
		}
	}

	w.setStatus(routeCtx, job.JobID, domain.JobStatusFailed)
	w.ack(ctx, delivery)
}

// ack acknowledges a delivery with a context detached from shutdown
func (w *Worker) ack(ctx context.Context, delivery *queue.Delivery) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.ackTimeout)
	defer cancel()

	if err := w.queue.Ack(ackCtx, delivery); err != nil {
		if errors.Is(err, queue.ErrAlreadyAcknowledged) {
			w.logger.Error("Delivery acknowledged twice",
				slog.String("job_id", delivery.Job.JobID),
			)
			return
		}
		w.logger.Error("Failed to ACK message",
			slog.String("job_id", delivery.Job.JobID),
			slog.String("error", err.Error()),
		)
	}
}

// cleanup removes the working directory of a run. The process pair has
// already been reaped by the pipeline.
func (w *Worker) cleanup(run *pipeline.Run) {
	if err := run.Close(); err != nil {
		w.logger.Warn("Failed to remove working directory",
			slog.String("job_id", run.JobID),
			slog.String("dir", run.Dir),
			slog.String("error", err.Error()),
		)
	}
}
