package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/hls-transcoder/internal/api/dto"
	"github.com/cuongbtq/hls-transcoder/internal/api/proxy"
	"github.com/cuongbtq/hls-transcoder/internal/api/service"
	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/gin-gonic/gin"
)

// SubmitVideo handles POST /api/v1/videos
func (h *VideoHandler) SubmitVideo(c *gin.Context) {
	var req dto.SubmitVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	result, err := h.videos.Submit(c.Request.Context(), service.SubmitRequest{
		SourceURL: req.URL,
		MaxHeight: req.MaxHeight,
		AudioOnly: req.AudioOnly,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidSource) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Failed to submit video", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit video",
		})
		return
	}

	code := http.StatusOK
	if result.Enqueued {
		code = http.StatusAccepted
	}
	c.JSON(code, dto.SubmitVideoResponse{
		JobID:    result.JobID,
		Status:   result.Status,
		Enqueued: result.Enqueued,
	})
}

// GetStatus handles GET /api/v1/videos/:job_id/status
func (h *VideoHandler) GetStatus(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	snap, err := h.videos.Status(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get job status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job status",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{
		JobID:    jobID,
		Status:   snap.Status,
		Progress: snap.Progress,
	})
}

// GetPlaylist handles GET /api/v1/videos/:job_id/playlist
func (h *VideoHandler) GetPlaylist(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	playlist, err := h.videos.Playlist(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrPlaylistNotReady) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Playlist not ready",
			})
			return
		}
		h.logger.Error("Failed to get playlist",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get playlist",
		})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, domain.PlaylistContentType, []byte(playlist))
}

// CleanVideo handles DELETE /api/v1/videos/:job_id
func (h *VideoHandler) CleanVideo(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	if err := h.videos.Clean(c.Request.Context(), jobID); err != nil {
		h.logger.Error("Failed to clean job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clean job",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// Stream handles GET /api/v1/stream?url=
func (h *VideoHandler) Stream(c *gin.Context) {
	var req dto.StreamRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "url is required",
		})
		return
	}

	upstream, err := proxy.ValidateUpstream(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := h.proxy.Stream(c.Writer, c.Request, upstream); err != nil {
		h.logger.Warn("Stream relay failed",
			slog.String("upstream", upstream.Host),
			slog.String("error", err.Error()),
		)
	}
}

func (h *VideoHandler) jobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	job := domain.VideoJob{JobID: jobID, SourceURL: "-"}
	if err := job.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid job_id",
		})
		return "", false
	}
	return jobID, true
}
