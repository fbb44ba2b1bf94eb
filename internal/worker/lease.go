package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/google/uuid"
)

var errLeaseLost = errors.New("job lease lost to another attempt")

// holdLease blocks until this attempt owns the job lease and keeps it
// refreshed until release is called. The returned context is canceled when
// the lease is lost.
func (w *Worker) holdLease(ctx context.Context, jobID string, logger *slog.Logger) (context.Context, func(), error) {
	holder := w.workerID + "/" + uuid.NewString()

	waiting := false
	for {
		ok, err := w.leaser.AcquireLease(ctx, jobID, holder, w.leaseTTL)
		if err != nil {
			return nil, nil, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to acquire job lease: %w", err)
		}
		if ok {
			break
		}
		if !waiting {
			logger.Info("Job is held by another attempt, waiting for its lease")
			waiting = true
		}
		select {
		case <-ctx.Done():
			return nil, nil, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "interrupted while waiting for job lease: %w", ctx.Err())
		case <-time.After(w.dequeueBackoff):
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(max(w.leaseTTL/3, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-leaseCtx.Done():
				return
			case <-ticker.C:
				ok, err := w.leaser.RefreshLease(leaseCtx, jobID, holder, w.leaseTTL)
				if err != nil {
					logger.Warn("Failed to refresh job lease",
						slog.String("error", err.Error()),
					)
					continue
				}
				if !ok {
					logger.Error("Job lease lost, aborting attempt")
					cancel(errLeaseLost)
					return
				}
			}
		}
	}()

	release := func() {
		close(stop)
		wg.Wait()
		cancel(nil)

		releaseCtx, cancelRelease := context.WithTimeout(context.WithoutCancel(ctx), w.ackTimeout)
		defer cancelRelease()
		if err := w.leaser.ReleaseLease(releaseCtx, jobID, holder); err != nil {
			logger.Warn("Failed to release job lease",
				slog.String("error", err.Error()),
			)
		}
	}
	return leaseCtx, release, nil
}
