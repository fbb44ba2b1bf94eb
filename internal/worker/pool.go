package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/worker/queue"
)

// spawnWorkerPool spawns N slot goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each slot
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		delivery, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				w.logger.Info("Worker goroutine stopping",
					slog.String("worker_name", workerName),
					slog.String("reason", err.Error()),
				)
				return
			}

			w.logger.Error("Failed to dequeue job",
				slog.String("worker_name", workerName),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.dequeueBackoff):
			}
			continue
		}

		w.handleDelivery(ctx, workerName, delivery)
	}
}

// handleDelivery processes one delivery and acknowledges it exactly once
func (w *Worker) handleDelivery(ctx context.Context, workerName string, delivery *queue.Delivery) {
	if delivery.Err != nil {
		w.logger.Warn("Dropping invalid job",
			slog.String("worker_name", workerName),
			slog.String("error", delivery.Err.Error()),
			slog.Int("payload_bytes", len(delivery.Raw)),
		)
		w.ack(ctx, delivery)
		return
	}

	w.logger.Info("Worker received job",
		slog.String("worker_name", workerName),
		slog.String("job_id", delivery.Job.JobID),
	)

	if err := w.runJob(ctx, delivery); err != nil {
		w.routeFailure(ctx, delivery, err)
		return
	}
	w.ack(ctx, delivery)
}
