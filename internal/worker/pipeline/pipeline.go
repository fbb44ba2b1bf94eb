// Package pipeline runs the fetch and encode processes of a single job.
//
// The fetch process writes the source media to stdout, a dedicated goroutine
// copies it into the encoder's stdin, and the encoder writes HLS segments and
// the playlist into an attempt-unique working directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/google/uuid"
)

// Config holds the external tool settings
type Config struct {
	FetchBinary    string
	EncodeBinary   string
	WorkDir        string
	CookiesFile    string
	MaxHeight      int
	SegmentSeconds int
	GOPSize        int
	CRF            int
	Preset         string
	AudioBitrate   string
	Timeout        time.Duration // 0 disables the watchdog
	KillGrace      time.Duration
	StderrLimit    int
}

// DefaultConfig returns the settings used when a field is left empty
func DefaultConfig() Config {
	return Config{
		FetchBinary:    "yt-dlp",
		EncodeBinary:   "ffmpeg",
		WorkDir:        os.TempDir(),
		MaxHeight:      1080,
		SegmentSeconds: 6,
		GOPSize:        60,
		CRF:            23,
		Preset:         "fast",
		AudioBitrate:   "128k",
		KillGrace:      5 * time.Second,
		StderrLimit:    4096,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FetchBinary == "" {
		c.FetchBinary = d.FetchBinary
	}
	if c.EncodeBinary == "" {
		c.EncodeBinary = d.EncodeBinary
	}
	if c.WorkDir == "" {
		c.WorkDir = d.WorkDir
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = d.MaxHeight
	}
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = d.SegmentSeconds
	}
	if c.GOPSize <= 0 {
		c.GOPSize = d.GOPSize
	}
	if c.CRF <= 0 {
		c.CRF = d.CRF
	}
	if c.Preset == "" {
		c.Preset = d.Preset
	}
	if c.AudioBitrate == "" {
		c.AudioBitrate = d.AudioBitrate
	}
	if c.KillGrace <= 0 {
		c.KillGrace = d.KillGrace
	}
	if c.StderrLimit <= 0 {
		c.StderrLimit = d.StderrLimit
	}
	return c
}

// Request describes one execution
type Request struct {
	JobID     string
	SourceURL string
	MaxHeight int // 0 uses the configured ceiling
	AudioOnly bool
}

// RequestFor builds the request for a queued job
func RequestFor(job domain.VideoJob) Request {
	return Request{
		JobID:     job.JobID,
		SourceURL: job.SourceURL,
		MaxHeight: job.MaxHeight,
		AudioOnly: job.AudioOnly,
	}
}

// Run is the working directory of one attempt. Close removes it and is
// safe to call more than once.
type Run struct {
	JobID string
	Dir   string

	closeOnce sync.Once
	closeErr  error
}

// PlaylistPath returns the local playlist path
func (r *Run) PlaylistPath() string {
	return filepath.Join(r.Dir, domain.PlaylistName)
}

func (r *Run) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = os.RemoveAll(r.Dir)
	})
	return r.closeErr
}

// Pipeline executes fetch and encode process pairs
type Pipeline struct {
	config Config
	logger *slog.Logger
}

// New creates a pipeline; empty config fields take their defaults
func New(config Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		config: config.withDefaults(),
		logger: logger,
	}
}

type copyResult struct {
	bytes int64
	err   error
}

// Execute runs the process pair to completion. Whenever the working directory
// was created the returned Run is non-nil, also on error, and the caller owns
// its cleanup. Process handles are always reaped before Execute returns.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*Run, error) {
	started := time.Now()

	if err := os.MkdirAll(p.config.WorkDir, 0o755); err != nil {
		return nil, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to create work dir: %w", err)
	}

	dir := filepath.Join(p.config.WorkDir, fmt.Sprintf("video-%s-%s", req.JobID, uuid.NewString()))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to create attempt dir: %w", err)
	}
	run := &Run{JobID: req.JobID, Dir: dir}

	cookies, err := p.stageCookies(dir)
	if err != nil {
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to stage cookies: %w", err)
	}

	var (
		runCtx    context.Context
		cancelRun context.CancelFunc
	)
	if p.config.Timeout > 0 {
		runCtx, cancelRun = context.WithTimeout(ctx, p.config.Timeout)
	} else {
		runCtx, cancelRun = context.WithCancel(ctx)
	}
	defer cancelRun()

	fetchCtx, cancelFetch := context.WithCancel(runCtx)
	defer cancelFetch()

	encodeStderr := newTailBuffer(p.config.StderrLimit)
	encode := newCommand(runCtx, p.config.KillGrace, dir, p.config.EncodeBinary, p.encodeArgs(req)...)
	encode.Stderr = encodeStderr
	encodeIn, err := encode.StdinPipe()
	if err != nil {
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to open encoder stdin: %w", err)
	}

	fetchStderr := newTailBuffer(p.config.StderrLimit)
	fetch := newCommand(fetchCtx, p.config.KillGrace, dir, p.config.FetchBinary, p.fetchArgs(req, cookies)...)
	fetch.Stderr = fetchStderr
	fetchOut, err := fetch.StdoutPipe()
	if err != nil {
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to open fetcher stdout: %w", err)
	}

	p.logger.Info("Starting pipeline",
		slog.String("job_id", req.JobID),
		slog.String("work_dir", dir),
		slog.Bool("audio_only", req.AudioOnly),
	)

	if err := encode.Start(); err != nil {
		fetchOut.Close()
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to start %s: %w", p.config.EncodeBinary, err)
	}
	if err := fetch.Start(); err != nil {
		cancelRun()
		encodeIn.Close()
		_ = encode.Wait()
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to start %s: %w", p.config.FetchBinary, err)
	}

	copied := make(chan copyResult, 1)
	go func() {
		n, err := io.Copy(encodeIn, fetchOut)
		encodeIn.Close()
		if err != nil {
			// The encoder stopped reading; the fetcher would block forever.
			cancelFetch()
		}
		copied <- copyResult{bytes: n, err: err}
	}()

	// fetchOut must be fully drained before fetch.Wait closes it.
	result := <-copied
	fetchErr := fetch.Wait()
	encodeErr := encode.Wait()

	// A pair that exited cleanly stands even if shutdown began meanwhile.
	succeeded := fetchErr == nil && encodeErr == nil && result.err == nil

	switch {
	case succeeded:
	case ctx.Err() != nil:
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "pipeline interrupted: %w", ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "pipeline timed out after %s", p.config.Timeout)
	case fetchErr != nil && result.err == nil:
		return run, domain.NewFailure(domain.ReasonSourceUnavailable, errors.New(describe(p.config.FetchBinary, fetchErr, fetchStderr)))
	case encodeErr != nil:
		return run, domain.NewFailure(domain.ReasonPipelineInfrastructureFailure, errors.New(describe(p.config.EncodeBinary, encodeErr, encodeStderr)))
	case result.err != nil:
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "stream copy failed after %d bytes: %w", result.bytes, result.err)
	case fetchErr != nil:
		return run, domain.NewFailure(domain.ReasonPipelineInfrastructureFailure, errors.New(describe(p.config.FetchBinary, fetchErr, fetchStderr)))
	}

	if _, err := os.Stat(run.PlaylistPath()); err != nil {
		return run, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "encoder produced no playlist: %w", err)
	}

	p.logger.Info("Pipeline finished",
		slog.String("job_id", req.JobID),
		slog.Int64("bytes_streamed", result.bytes),
		slog.Duration("duration", time.Since(started)),
	)
	return run, nil
}

// stageCookies copies the cookie jar into the attempt directory. yt-dlp
// rewrites the jar on exit, so concurrent runs must not share one file.
func (p *Pipeline) stageCookies(dir string) (string, error) {
	if p.config.CookiesFile == "" {
		return "", nil
	}

	src, err := os.Open(p.config.CookiesFile)
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := filepath.Join(dir, "cookies.txt")
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return path, dst.Close()
}
