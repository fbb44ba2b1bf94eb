// Package deadletter keeps a queryable copy of dead-lettered jobs so that
// operators can list and replay them.
package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned for unknown entry ids
var ErrNotFound = errors.New("dead letter not found")

const schema = `
	CREATE TABLE IF NOT EXISTS dead_letters (
		id          BIGSERIAL PRIMARY KEY,
		job_id      TEXT NOT NULL,
		source_url  TEXT NOT NULL,
		max_height  INTEGER NOT NULL DEFAULT 0,
		audio_only  BOOLEAN NOT NULL DEFAULT FALSE,
		reason      TEXT NOT NULL,
		detail      TEXT NOT NULL DEFAULT '',
		failed_at   TIMESTAMPTZ NOT NULL,
		replayed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_dead_letters_failed_at ON dead_letters (failed_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_dead_letters_job_id ON dead_letters (job_id);
`

const selectColumns = `
	SELECT
		id, job_id, source_url, max_height, audio_only,
		reason, detail, failed_at, replayed_at
	FROM dead_letters
`

// Enqueuer is the producer side of a job queue
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.VideoJob) error
}

// Storage persists dead letters in PostgreSQL
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the table when it does not exist
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate dead_letters: %w", err)
	}
	return nil
}

// Record stores a dead letter and returns its id
func (s *Storage) Record(ctx context.Context, dl domain.DeadLetter) (int64, error) {
	query := `
		INSERT INTO dead_letters (
			job_id, source_url, max_height, audio_only,
			reason, detail, failed_at
		) VALUES (
			:job_id, :source_url, :max_height, :audio_only,
			:reason, :detail, :failed_at
		)
		RETURNING id
	`

	query, args, err := s.db.BindNamed(query, FromDeadLetter(dl))
	if err != nil {
		return 0, fmt.Errorf("failed to bind dead letter: %w", err)
	}

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to record dead letter: %w", err)
	}

	s.logger.Info("Dead letter recorded",
		slog.Int64("id", id),
		slog.String("job_id", dl.Job.JobID),
		slog.String("reason", string(dl.Reason)),
	)
	return id, nil
}

func (s *Storage) Get(ctx context.Context, id int64) (*Entry, error) {
	var entry Entry
	err := s.db.GetContext(ctx, &entry, selectColumns+" WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return &entry, nil
}

type Filter struct {
	JobID       string
	Reason      string
	PendingOnly bool
	PageSize    int
	Cursor      *Cursor
}

// List returns up to PageSize+1 entries, newest first. The extra row tells
// the caller whether another page exists.
func (s *Storage) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query, args := buildListQuery(filter)

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return entries, nil
}

func buildListQuery(filter Filter) (string, []interface{}) {
	query := selectColumns + " WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.JobID != "" {
		query += fmt.Sprintf(" AND job_id = $%d", argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}

	if filter.Reason != "" {
		query += fmt.Sprintf(" AND reason = $%d", argIdx)
		args = append(args, filter.Reason)
		argIdx++
	}

	if filter.PendingOnly {
		query += " AND replayed_at IS NULL"
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (failed_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.FailedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY failed_at DESC, id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}

func (s *Storage) MarkReplayed(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE dead_letters SET replayed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark dead letter replayed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Replay puts the job of an entry back on the queue and marks the entry.
// A job that completed meanwhile is skipped by the worker's marker check.
func (s *Storage) Replay(ctx context.Context, id int64, queue Enqueuer) (*Entry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := queue.Enqueue(ctx, entry.Job()); err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", entry.JobID, err)
	}

	if err := s.MarkReplayed(ctx, id); err != nil {
		return nil, err
	}

	s.logger.Info("Dead letter replayed",
		slog.Int64("id", id),
		slog.String("job_id", entry.JobID),
	)
	return entry, nil
}
