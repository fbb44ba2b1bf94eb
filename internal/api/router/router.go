package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps.HealthChecks))

	videoHandler := handler.NewVideoHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		videos := v1.Group("/videos")
		{
			videos.POST("", videoHandler.SubmitVideo)
			videos.GET("/:job_id/status", videoHandler.GetStatus)
			videos.GET("/:job_id/playlist", videoHandler.GetPlaylist)
			videos.DELETE("/:job_id", videoHandler.CleanVideo)
		}

		v1.GET("/stream", videoHandler.Stream)

		if deps.DeadLetters != nil {
			deadLetterHandler := handler.NewDeadLetterHandler(deps)
			deadLetters := v1.Group("/dead-letters")
			{
				deadLetters.GET("", deadLetterHandler.ListDeadLetters)
				deadLetters.POST("/:id/replay", deadLetterHandler.ReplayDeadLetter)
			}
		}
	}

	return r
}

func healthHandler(checks map[string]func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		code := http.StatusOK
		status := "healthy"
		components := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = err.Error()
				code = http.StatusServiceUnavailable
				status = "unhealthy"
				continue
			}
			components[name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":     status,
			"service":    "hls-api-service",
			"components": components,
		})
	}
}
