package dto

type ListDeadLettersRequest struct {
	JobID    string `form:"job_id"`
	Reason   string `form:"reason"`
	Pending  bool   `form:"pending"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListDeadLettersResponse struct {
	DeadLetters []DeadLetterDTO `json:"dead_letters"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

type DeadLetterDTO struct {
	ID         int64  `json:"id"`
	JobID      string `json:"job_id"`
	SourceURL  string `json:"source_url"`
	MaxHeight  int    `json:"max_height,omitempty"`
	AudioOnly  bool   `json:"audio_only,omitempty"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
	FailedAt   string `json:"failed_at"`
	ReplayedAt string `json:"replayed_at,omitempty"`
}
