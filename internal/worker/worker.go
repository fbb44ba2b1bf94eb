// Package worker runs the dispatcher: a fixed pool of slots that take jobs
// off the queue, run the transcode pipeline and publish the result.
//
// The pool size is the only admission control. A slot is busy for the whole
// duration of a job, and every dequeued delivery is acknowledged exactly once.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/status"
	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/cuongbtq/hls-transcoder/internal/worker/pipeline"
	"github.com/cuongbtq/hls-transcoder/internal/worker/publisher"
	"github.com/cuongbtq/hls-transcoder/internal/worker/queue"
	"github.com/cuongbtq/hls-transcoder/shared/objectstore"
)

// Executor runs the fetch and encode processes of one job
type Executor interface {
	Execute(ctx context.Context, req pipeline.Request) (*pipeline.Run, error)
}

// Publisher uploads a finished run
type Publisher interface {
	Publish(ctx context.Context, jobID, dir string, progress publisher.ProgressFunc) (*publisher.Result, error)
}

// Ledger keeps a queryable copy of dead letters
type Ledger interface {
	Record(ctx context.Context, dl domain.DeadLetter) (int64, error)
}

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	Queue          queue.JobQueue
	Store          objectstore.Store
	Pipeline       Executor
	Publisher      Publisher
	Tracker        status.Tracker // optional
	Ledger         Ledger         // optional
	WorkerID       string
	Concurrency    int
	PurgeOrphans   bool // requires a Tracker that implements status.Leaser
	LeaseTTL       time.Duration
	AckTimeout     time.Duration
	DequeueBackoff time.Duration
}

// Worker represents the dispatcher and its slots
type Worker struct {
	logger         *slog.Logger
	queue          queue.JobQueue
	store          objectstore.Store
	pipeline       Executor
	publisher      Publisher
	tracker        status.Tracker
	leaser         status.Leaser // nil unless the orphan purge is enabled
	ledger         Ledger
	workerID       string
	concurrency    int
	purgeOrphans   bool
	leaseTTL       time.Duration
	ackTimeout     time.Duration
	dequeueBackoff time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:         cfg.Logger,
		queue:          cfg.Queue,
		store:          cfg.Store,
		pipeline:       cfg.Pipeline,
		publisher:      cfg.Publisher,
		tracker:        cfg.Tracker,
		ledger:         cfg.Ledger,
		workerID:       cfg.WorkerID,
		concurrency:    cfg.Concurrency,
		purgeOrphans:   cfg.PurgeOrphans,
		leaseTTL:       cfg.LeaseTTL,
		ackTimeout:     cfg.AckTimeout,
		dequeueBackoff: cfg.DequeueBackoff,
		stopChan:       make(chan struct{}),
	}

	if w.tracker == nil {
		w.tracker = status.Noop{}
	}
	if w.workerID == "" {
		w.workerID = "worker"
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.ackTimeout <= 0 {
		w.ackTimeout = 10 * time.Second
	}
	if w.dequeueBackoff <= 0 {
		w.dequeueBackoff = time.Second
	}
	if w.leaseTTL <= 0 {
		w.leaseTTL = 2 * time.Minute
	}

	if w.purgeOrphans {
		if leaser, ok := w.tracker.(status.Leaser); ok {
			w.leaser = leaser
		} else {
			w.logger.Warn("Orphan purge disabled: status tracker cannot lease jobs")
			w.purgeOrphans = false
		}
	}
	return w
}

// Start runs the pool until ctx is canceled or Stop is called, then waits
// for every slot to finish its current job.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Bool("purge_orphans", w.purgeOrphans),
	)

	if recoverer, ok := w.queue.(queue.Recoverer); ok {
		recovered, err := recoverer.Recover(ctx)
		if err != nil {
			w.logger.Error("Failed to recover in-flight messages",
				slog.String("error", err.Error()),
			)
		} else if recovered > 0 {
			w.logger.Warn("Recovered in-flight messages from a previous run",
				slog.Int("count", recovered),
			)
		}
	}

	w.spawnWorkerPool(ctx)

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
		w.logger.Info("Worker stop requested")
	}

	// Cancels blocked dequeues and terminates running process pairs.
	cancel()
	w.wg.Wait()
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
