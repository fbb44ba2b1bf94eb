package deadletter

import (
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
)

// Entry is one row of the dead_letters table
type Entry struct {
	ID         int64      `db:"id" json:"id"`
	JobID      string     `db:"job_id" json:"jobId"`
	SourceURL  string     `db:"source_url" json:"sourceUrl"`
	MaxHeight  int        `db:"max_height" json:"maxHeight,omitempty"`
	AudioOnly  bool       `db:"audio_only" json:"audioOnly,omitempty"`
	Reason     string     `db:"reason" json:"reason"`
	Detail     string     `db:"detail" json:"detail,omitempty"`
	FailedAt   time.Time  `db:"failed_at" json:"failedAt"`
	ReplayedAt *time.Time `db:"replayed_at" json:"replayedAt,omitempty"`
}

// FromDeadLetter flattens a dead-letter message into a row
func FromDeadLetter(dl domain.DeadLetter) Entry {
	return Entry{
		JobID:     dl.Job.JobID,
		SourceURL: dl.Job.SourceURL,
		MaxHeight: dl.Job.MaxHeight,
		AudioOnly: dl.Job.AudioOnly,
		Reason:    string(dl.Reason),
		Detail:    dl.Detail,
		FailedAt:  dl.FailedAt,
	}
}

// Job rebuilds the original job message
func (e Entry) Job() domain.VideoJob {
	return domain.VideoJob{
		JobID:     e.JobID,
		SourceURL: e.SourceURL,
		MaxHeight: e.MaxHeight,
		AudioOnly: e.AudioOnly,
	}
}

// Replayed reports whether the entry has been re-enqueued
func (e Entry) Replayed() bool {
	return e.ReplayedAt != nil
}
