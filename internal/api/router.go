package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tess1o/geopulse-sub001/internal/config"
	"github.com/tess1o/geopulse-sub001/internal/handler"
	"github.com/tess1o/geopulse-sub001/internal/middleware"
)

// SetupRouter wires the HTTP routes
func SetupRouter(cfg *config.Config, timeline handler.TimelineService, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Timeline API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	h := handler.NewTimelineHandler(timeline)

	api := r.Group("/api/v1", middleware.RateLimit(limiter), middleware.AuthRequired(cfg.JWTSecret))
	{
		tl := api.Group("/timeline")
		{
			tl.GET("", h.GetTimeline)
			tl.POST("/regenerate", h.ForceRegenerate)
			tl.POST("/regeneration/high", h.EnqueueHighPriority)
			tl.POST("/regeneration/low", h.EnqueueLowPriority)
			tl.GET("/queue", h.QueueStatus)
		}

		api.POST("/location-events", h.PublishLocationChange)
	}

	return r
}
