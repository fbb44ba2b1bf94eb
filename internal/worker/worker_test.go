package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/status"
	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/cuongbtq/hls-transcoder/internal/worker/pipeline"
	"github.com/cuongbtq/hls-transcoder/internal/worker/publisher"
	"github.com/cuongbtq/hls-transcoder/internal/worker/queue"
	"github.com/cuongbtq/hls-transcoder/shared/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor stands in for yt-dlp and ffmpeg by writing a finished run.
type fakeExecutor struct {
	baseDir  string
	segments int
	err      error
	block    bool
	panicMsg string

	mu    sync.Mutex
	calls []pipeline.Request
	dirs  []string
}

func (f *fakeExecutor) Execute(ctx context.Context, req pipeline.Request) (*pipeline.Run, error) {
	dir, err := os.MkdirTemp(f.baseDir, "video-"+req.JobID+"-")
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()

	run := &pipeline.Run{JobID: req.JobID, Dir: dir}

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block {
		<-ctx.Done()
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "pipeline interrupted: %w", ctx.Err())
	}
	if f.err != nil {
		return run, f.err
	}

	var playlist strings.Builder
	playlist.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:6\n")
	for i := 0; i < f.segments; i++ {
		name := fmt.Sprintf("segment%d.ts", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			return run, err
		}
		playlist.WriteString("#EXTINF:6.0,\n" + name + "\n")
	}
	playlist.WriteString("#EXT-X-ENDLIST\n")
	if err := os.WriteFile(filepath.Join(dir, domain.PlaylistName), []byte(playlist.String()), 0o644); err != nil {
		return run, err
	}
	return run, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExecutor) workDirs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dirs...)
}

type recordingStore struct {
	*objectstore.Memory

	mu        sync.Mutex
	puts      []string
	failing   map[string]bool
	beforePut func(key string)
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		Memory:  objectstore.NewMemory(domain.DefaultBucket),
		failing: make(map[string]bool),
	}
}

func (s *recordingStore) PutFile(ctx context.Context, key, path, contentType string) error {
	if s.beforePut != nil {
		s.beforePut(key)
	}
	s.mu.Lock()
	s.puts = append(s.puts, key)
	fail := s.failing[key]
	s.mu.Unlock()
	if fail {
		return errors.New("simulated upload failure")
	}
	return s.Memory.PutFile(ctx, key, path, contentType)
}

func (s *recordingStore) uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

type fakeLedger struct {
	mu      sync.Mutex
	records []domain.DeadLetter
}

func (l *fakeLedger) Record(ctx context.Context, dl domain.DeadLetter) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, dl)
	return int64(len(l.records)), nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

type harness struct {
	queue    *queue.Memory
	store    *recordingStore
	executor *fakeExecutor
	tracker  *status.Memory
	ledger   *fakeLedger
	worker   *Worker
	done     chan error
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, concurrency int) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		queue:    queue.NewMemory(16),
		store:    newRecordingStore(),
		executor: &fakeExecutor{baseDir: t.TempDir(), segments: 5},
		tracker:  status.NewMemory(),
		ledger:   &fakeLedger{},
		done:     make(chan error, 1),
	}
	h.worker = NewWorker(&Config{
		Logger:         logger,
		Queue:          h.queue,
		Store:          h.store,
		Pipeline:       h.executor,
		Publisher:      publisher.New(h.store, publisher.Config{}, logger),
		Tracker:        h.tracker,
		Ledger:         h.ledger,
		WorkerID:       "test",
		Concurrency:    concurrency,
		PurgeOrphans:   true,
		DequeueBackoff: 10 * time.Millisecond,
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- h.worker.Start(ctx)
	}()
	t.Cleanup(func() {
		h.cancel()
		h.worker.Stop()
	})
}

func (h *harness) waitForAcks(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.queue.Acked()) >= n
	}, 5*time.Second, 10*time.Millisecond)
}

func (h *harness) status(t *testing.T, jobID string) string {
	t.Helper()
	snap, err := h.tracker.Get(context.Background(), jobID)
	require.NoError(t, err)
	return snap.Status
}

func exists(t *testing.T, store objectstore.Store, key string) bool {
	t.Helper()
	ok, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestWorker_EndToEnd(t *testing.T) {
	h := newHarness(t, 2)
	h.start(t)

	require.NoError(t, h.queue.Enqueue(context.Background(), domain.VideoJob{
		JobID:     "abc123",
		SourceURL: "https://example/video?v=abc123",
	}))
	h.waitForAcks(t, 1)

	assert.Equal(t, 1, h.executor.callCount())
	assert.Equal(t, []string{
		"abc123/segment0.ts",
		"abc123/segment1.ts",
		"abc123/segment2.ts",
		"abc123/segment3.ts",
		"abc123/segment4.ts",
		"abc123/playlist.m3u8",
	}, h.store.uploads())
	assert.Empty(t, h.queue.DeadLetters())
	assert.Equal(t, domain.JobStatusCompleted, h.status(t, "abc123"))

	for _, dir := range h.executor.workDirs() {
		assert.NoDirExists(t, dir)
	}
}

func TestWorker_SkipsCompletedJob(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Put(domain.MarkerKey("abc123"), []byte("#EXTM3U\n"), domain.PlaylistContentType)
	h.start(t)

	job := domain.VideoJob{JobID: "abc123", SourceURL: "https://example/video?v=abc123"}
	require.NoError(t, h.queue.Enqueue(context.Background(), job))
	require.NoError(t, h.queue.Enqueue(context.Background(), job))
	h.waitForAcks(t, 2)

	assert.Zero(t, h.executor.callCount())
	assert.Empty(t, h.store.uploads())
	assert.Empty(t, h.queue.DeadLetters())
	assert.Equal(t, domain.JobStatusCompleted, h.status(t, "abc123"))
}

func TestWorker_ResubmissionAfterCompletionRunsOnce(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)

	job := domain.VideoJob{JobID: "abc123", SourceURL: "https://example/video?v=abc123"}
	require.NoError(t, h.queue.Enqueue(context.Background(), job))
	h.waitForAcks(t, 1)
	require.NoError(t, h.queue.Enqueue(context.Background(), job))
	h.waitForAcks(t, 2)

	assert.Equal(t, 1, h.executor.callCount())
}

func TestWorker_SourceUnavailable(t *testing.T) {
	h := newHarness(t, 1)
	h.executor.err = domain.Failuref(domain.ReasonSourceUnavailable, "yt-dlp: exit status 1: ERROR: Video unavailable")
	h.start(t)

	require.NoError(t, h.queue.Enqueue(context.Background(), domain.VideoJob{JobID: "gone", SourceURL: "https://example/video?v=gone"}))
	h.waitForAcks(t, 1)

	dls := h.queue.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, domain.ReasonSourceUnavailable, dls[0].Reason)
	assert.Equal(t, "gone", dls[0].Job.JobID)
	assert.Contains(t, dls[0].Detail, "Video unavailable")
	assert.False(t, dls[0].FailedAt.IsZero())

	assert.Equal(t, 1, h.ledger.count())
	assert.False(t, exists(t, h.store, domain.MarkerKey("gone")))
	assert.Equal(t, domain.JobStatusFailed, h.status(t, "gone"))
	for _, dir := range h.executor.workDirs() {
		assert.NoDirExists(t, dir)
	}
}

func TestWorker_PartialPublish(t *testing.T) {
	h := newHarness(t, 1)
	h.store.failing["abc123/segment2.ts"] = true
	h.start(t)

	require.NoError(t, h.queue.Enqueue(context.Background(), domain.VideoJob{JobID: "abc123", SourceURL: "https://example/video?v=abc123"}))
	h.waitForAcks(t, 1)

	dls := h.queue.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, domain.ReasonPublishPartialFailure, dls[0].Reason)

	assert.NotContains(t, h.store.uploads(), "abc123/playlist.m3u8")
	assert.False(t, exists(t, h.store, "abc123/playlist.m3u8"))
	for _, key := range []string{"abc123/segment0.ts", "abc123/segment1.ts", "abc123/segment3.ts", "abc123/segment4.ts"} {
		assert.True(t, exists(t, h.store, key), key)
	}
}

func TestWorker_MalformedMessagesAreDropped(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)

	ctx := context.Background()
	require.NoError(t, h.queue.EnqueueRaw(ctx, []byte("not json")))
	require.NoError(t, h.queue.EnqueueRaw(ctx, []byte(`{"jobId":"","sourceUrl":"https://example/v"}`)))
	require.NoError(t, h.queue.EnqueueRaw(ctx, []byte(`{"jobId":"../etc","sourceUrl":"https://example/v"}`)))
	h.waitForAcks(t, 3)

	assert.Zero(t, h.executor.callCount())
	assert.Empty(t, h.queue.DeadLetters())
	assert.Zero(t, h.ledger.count())
	for _, d := range h.queue.Acked() {
		assert.True(t, errors.Is(d.Err, domain.ErrInvalidJob))
	}
}

func TestWorker_PurgesOrphansBeforeRetry(t *testing.T) {
	h := newHarness(t, 1)
	h.executor.segments = 2
	h.store.Put("abc123/segment7.ts", []byte("stale"), domain.SegmentContentType)
	h.start(t)

	require.NoError(t, h.queue.Enqueue(context.Background(), domain.VideoJob{JobID: "abc123", SourceURL: "https://example/video?v=abc123"}))
	h.waitForAcks(t, 1)

	assert.False(t, exists(t, h.store, "abc123/segment7.ts"))
	assert.True(t, exists(t, h.store, "abc123/playlist.m3u8"))
}

func TestWorker_ConcurrentDuplicateNeverExposesDanglingPlaylist(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	job := domain.VideoJob{JobID: "dup", SourceURL: "https://example/video?v=dup"}

	var mu sync.Mutex
	var missing []string
	redelivered := false
	h.store.beforePut = func(key string) {
		if key != domain.MarkerKey("dup") {
			return
		}
		mu.Lock()
		first := !redelivered
		redelivered = true
		mu.Unlock()
		if !first {
			return
		}

		// Redeliver while this attempt sits between its segments and its playlist.
		assert.NoError(t, h.queue.Enqueue(ctx, job))
		deadline := time.Now().Add(300 * time.Millisecond)
		for h.executor.callCount() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		mu.Lock()
		defer mu.Unlock()
		for i := 0; i < h.executor.segments; i++ {
			seg := fmt.Sprintf("dup/segment%d.ts", i)
			if ok, _ := h.store.Memory.Exists(ctx, seg); !ok {
				missing = append(missing, seg)
			}
		}
	}
	h.start(t)

	require.NoError(t, h.queue.Enqueue(ctx, job))
	h.waitForAcks(t, 2)

	mu.Lock()
	assert.Empty(t, missing, "segments missing when the playlist became visible")
	mu.Unlock()
	assert.Equal(t, 1, h.executor.callCount())
	assert.Empty(t, h.queue.DeadLetters())
	assert.True(t, exists(t, h.store, domain.MarkerKey("dup")))
	for i := 0; i < h.executor.segments; i++ {
		assert.True(t, exists(t, h.store, fmt.Sprintf("dup/segment%d.ts", i)))
	}
}

func TestWorker_ReleasesLeaseAfterFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.executor.err = domain.Failuref(domain.ReasonSourceUnavailable, "yt-dlp: exit status 1")
	h.start(t)

	require.NoError(t, h.queue.Enqueue(context.Background(), domain.VideoJob{JobID: "gone", SourceURL: "https://example/video?v=gone"}))
	h.waitForAcks(t, 1)

	ok, err := h.tracker.AcquireLease(context.Background(), "gone", "replay", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWorker_PurgeNeedsLeasingTracker(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(&Config{
		Logger:       logger,
		Queue:        queue.NewMemory(1),
		Store:        newRecordingStore(),
		PurgeOrphans: true,
	})
	assert.False(t, w.purgeOrphans)
	assert.Nil(t, w.leaser)

	w = NewWorker(&Config{
		Logger:       logger,
		Queue:        queue.NewMemory(1),
		Store:        newRecordingStore(),
		Tracker:      status.NewMemory(),
		PurgeOrphans: true,
	})
	assert.True(t, w.purgeOrphans)
	assert.NotNil(t, w.leaser)
}

func TestWorker_PanicIsRoutedAsInfrastructureFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.executor.panicMsg = "boom"
	h.start(t)

	require.NoError(t, h.queue.Enqueue(context.Background(), domain.VideoJob{JobID: "abc123", SourceURL: "https://example/video?v=abc123"}))
	h.waitForAcks(t, 1)

	dls := h.queue.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, domain.ReasonPipelineInfrastructureFailure, dls[0].Reason)
	assert.Contains(t, dls[0].Detail, "boom")
}

func TestWorker_ExactlyOneAckPerDelivery(t *testing.T) {
	h := newHarness(t, 3)
	h.store.failing["j2/segment1.ts"] = true
	h.start(t)

	ctx := context.Background()
	h.store.Put(domain.MarkerKey("j3"), []byte("#EXTM3U\n"), domain.PlaylistContentType)
	for _, id := range []string{"j1", "j2", "j3", "j4"} {
		require.NoError(t, h.queue.Enqueue(ctx, domain.VideoJob{JobID: id, SourceURL: "https://example/video?v=" + id}))
	}
	require.NoError(t, h.queue.EnqueueRaw(ctx, []byte("{")))
	h.waitForAcks(t, 5)

	time.Sleep(50 * time.Millisecond)
	acked := h.queue.Acked()
	assert.Len(t, acked, 5)

	seen := make(map[*queue.Delivery]bool)
	for _, d := range acked {
		assert.False(t, seen[d], "delivery acknowledged twice")
		seen[d] = true
	}
}

func TestWorker_StopUnblocksIdleSlots(t *testing.T) {
	h := newHarness(t, 4)
	h.start(t)

	stopped := make(chan struct{})
	go func() {
		h.worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
	require.NoError(t, <-h.done)
}

func TestWorker_ShutdownInterruptsRunningJob(t *testing.T) {
	h := newHarness(t, 1)
	h.executor.block = true
	h.start(t)

	require.NoError(t, h.queue.Enqueue(context.Background(), domain.VideoJob{JobID: "long", SourceURL: "https://example/video?v=long"}))
	require.Eventually(t, func() bool {
		return h.executor.callCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}

	require.Len(t, h.queue.Acked(), 1)
	dls := h.queue.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, domain.ReasonPipelineInfrastructureFailure, dls[0].Reason)
	for _, dir := range h.executor.workDirs() {
		assert.NoDirExists(t, dir)
	}
}
