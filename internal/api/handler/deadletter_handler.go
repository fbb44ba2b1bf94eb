package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/api/dto"
	"github.com/cuongbtq/hls-transcoder/internal/deadletter"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListDeadLetters handles GET /api/v1/dead-letters
func (h *DeadLetterHandler) ListDeadLetters(c *gin.Context) {
	var req dto.ListDeadLettersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := deadletter.DecodeCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	entries, err := h.store.List(c.Request.Context(), deadletter.Filter{
		JobID:       req.JobID,
		Reason:      req.Reason,
		PendingOnly: req.Pending,
		PageSize:    req.PageSize,
		Cursor:      cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list dead letters", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list dead letters",
		})
		return
	}

	resp := dto.ListDeadLettersResponse{DeadLetters: []dto.DeadLetterDTO{}}
	if len(entries) > req.PageSize {
		entries = entries[:req.PageSize]
		last := entries[len(entries)-1]
		resp.NextCursor = deadletter.EncodeCursor(&deadletter.Cursor{FailedAt: last.FailedAt, ID: last.ID})
	}
	for _, entry := range entries {
		resp.DeadLetters = append(resp.DeadLetters, toDeadLetterDTO(entry))
	}

	c.JSON(http.StatusOK, resp)
}

// ReplayDeadLetter handles POST /api/v1/dead-letters/:id/replay
func (h *DeadLetterHandler) ReplayDeadLetter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid id",
		})
		return
	}

	entry, err := h.store.Replay(c.Request.Context(), id, h.queue)
	if err != nil {
		if errors.Is(err, deadletter.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Dead letter not found",
			})
			return
		}
		h.logger.Error("Failed to replay dead letter",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to replay dead letter",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     entry.ID,
		"job_id": entry.JobID,
	})
}

func toDeadLetterDTO(entry deadletter.Entry) dto.DeadLetterDTO {
	out := dto.DeadLetterDTO{
		ID:        entry.ID,
		JobID:     entry.JobID,
		SourceURL: entry.SourceURL,
		MaxHeight: entry.MaxHeight,
		AudioOnly: entry.AudioOnly,
		Reason:    entry.Reason,
		Detail:    entry.Detail,
		FailedAt:  entry.FailedAt.Format(time.RFC3339),
	}
	if entry.ReplayedAt != nil {
		out.ReplayedAt = entry.ReplayedAt.Format(time.RFC3339)
	}
	return out
}
