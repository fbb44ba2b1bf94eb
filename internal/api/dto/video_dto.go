package dto

type SubmitVideoRequest struct {
	URL       string `json:"url" binding:"required"`
	MaxHeight int    `json:"max_height" binding:"omitempty,min=144,max=4320"`
	AudioOnly bool   `json:"audio_only"`
}

type SubmitVideoResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Enqueued bool   `json:"enqueued"`
}

type JobStatusResponse struct {
	JobID    string   `json:"job_id"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
}

type StreamRequest struct {
	URL string `form:"url" binding:"required"`
}
