package domain

// Job status values stored by the status tracker
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusUnknown    = "unknown"
)

// Artifact naming
const (
	PlaylistName    = "playlist.m3u8"
	SegmentTemplate = "segment%d.ts"

	SegmentContentType  = "video/mp2t"
	PlaylistContentType = "application/vnd.apple.mpegurl"

	DefaultBucket = "videos"
)
