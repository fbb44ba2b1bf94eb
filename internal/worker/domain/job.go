package domain

import (
	"fmt"
	"strings"
	"time"
)

// VideoJob is the message carried by every queue transport.
type VideoJob struct {
	JobID     string `json:"jobId"`
	SourceURL string `json:"sourceUrl"`
	MaxHeight int    `json:"maxHeight,omitempty"`
	AudioOnly bool   `json:"audioOnly,omitempty"`
}

// Validate reports whether the job can be processed at all.
// A job failing validation is dropped, never dead-lettered.
func (j VideoJob) Validate() error {
	if strings.TrimSpace(j.JobID) == "" {
		return fmt.Errorf("%w: empty jobId", ErrInvalidJob)
	}
	if strings.ContainsAny(j.JobID, `/\`) || strings.Contains(j.JobID, "..") {
		return fmt.Errorf("%w: jobId %q is not a valid key segment", ErrInvalidJob, j.JobID)
	}
	if strings.TrimSpace(j.SourceURL) == "" {
		return fmt.Errorf("%w: empty sourceUrl for job %s", ErrInvalidJob, j.JobID)
	}
	if j.MaxHeight < 0 {
		return fmt.Errorf("%w: negative maxHeight %d", ErrInvalidJob, j.MaxHeight)
	}
	return nil
}

// ArtifactKind distinguishes media segments from the playlist.
type ArtifactKind string

const (
	ArtifactSegment  ArtifactKind = "segment"
	ArtifactPlaylist ArtifactKind = "playlist"
)

// Artifact is one file produced by the encoder and destined for the object store.
type Artifact struct {
	JobID          string
	RelativeName   string
	Kind           ArtifactKind
	SourcePath     string
	SequenceNumber int
}

// Key returns the object key of the artifact.
func (a Artifact) Key() string {
	return ObjectKey(a.JobID, a.RelativeName)
}

// ContentType returns the MIME type the artifact is stored with.
func (a Artifact) ContentType() string {
	if a.Kind == ArtifactPlaylist {
		return PlaylistContentType
	}
	return SegmentContentType
}

// DeadLetter is the record written to the dead-letter channel.
type DeadLetter struct {
	Job      VideoJob  `json:"job"`
	Reason   Reason    `json:"reason"`
	Detail   string    `json:"detail,omitempty"`
	FailedAt time.Time `json:"failedAt"`
}

// ObjectKey builds the storage key for a file of the given job.
func ObjectKey(jobID, name string) string {
	return jobID + "/" + name
}

// MarkerKey returns the completion marker key of a job.
func MarkerKey(jobID string) string {
	return ObjectKey(jobID, PlaylistName)
}

// JobPrefix returns the key prefix holding every artifact of a job.
func JobPrefix(jobID string) string {
	return jobID + "/"
}
