package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tess1o/geopulse-sub001/internal/middleware"
	"github.com/tess1o/geopulse-sub001/internal/models"
	"github.com/tess1o/geopulse-sub001/internal/service"
	"github.com/tess1o/geopulse-sub001/pkg/response"
)

const dateLayout = "2006-01-02"

// TimelineService is what the timeline endpoints need from the engine
type TimelineService interface {
	GetTimeline(ctx context.Context, userID string, start, end time.Time) (*models.TimelineSnapshot, error)
	ForceRegenerate(ctx context.Context, userID string, start, end time.Time) (*models.TimelineSnapshot, error)
	EnqueueHighPriority(ctx context.Context, userID string, dates []time.Time) (*models.RegenerationTask, error)
	EnqueueLowPriority(ctx context.Context, userID string, start, end time.Time) (*models.RegenerationTask, error)
	QueueStatus(ctx context.Context) (*service.QueueStatus, error)
	PublishLocationChange(ctx context.Context, event models.LocationChangeEvent) error
}

// TimelineHandler handles HTTP requests for timelines and regeneration
type TimelineHandler struct {
	service TimelineService
}

// NewTimelineHandler creates a new timeline handler
func NewTimelineHandler(service TimelineService) *TimelineHandler {
	return &TimelineHandler{service: service}
}

type rangeQuery struct {
	Start time.Time `form:"start" json:"start" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	End   time.Time `form:"end" json:"end" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

type highPriorityRequest struct {
	Dates []string `json:"dates" binding:"required,min=1,dive,datetime=2006-01-02"`
}

// GetTimeline handles GET /api/v1/timeline
func (h *TimelineHandler) GetTimeline(c *gin.Context) {
	var q rangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}

	snapshot, err := h.service.GetTimeline(c.Request.Context(), middleware.GetUserID(c), q.Start, q.End)
	if err != nil {
		writeServiceError(c, "Failed to get timeline", err)
		return
	}
	response.Success(c, snapshot)
}

// ForceRegenerate handles POST /api/v1/timeline/regenerate
func (h *TimelineHandler) ForceRegenerate(c *gin.Context) {
	var req rangeQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	snapshot, err := h.service.ForceRegenerate(c.Request.Context(), middleware.GetUserID(c), req.Start, req.End)
	if err != nil {
		writeServiceError(c, "Failed to regenerate timeline", err)
		return
	}
	response.Success(c, snapshot)
}

// EnqueueHighPriority handles POST /api/v1/timeline/regeneration/high
func (h *TimelineHandler) EnqueueHighPriority(c *gin.Context) {
	var req highPriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	dates := make([]time.Time, 0, len(req.Dates))
	for _, d := range req.Dates {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			response.BadRequest(c, "Invalid date", err)
			return
		}
		dates = append(dates, t)
	}

	task, err := h.service.EnqueueHighPriority(c.Request.Context(), middleware.GetUserID(c), dates)
	if err != nil {
		writeServiceError(c, "Failed to queue regeneration", err)
		return
	}
	response.Accepted(c, task)
}

// EnqueueLowPriority handles POST /api/v1/timeline/regeneration/low
func (h *TimelineHandler) EnqueueLowPriority(c *gin.Context) {
	var req rangeQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	task, err := h.service.EnqueueLowPriority(c.Request.Context(), middleware.GetUserID(c), req.Start, req.End)
	if err != nil {
		writeServiceError(c, "Failed to queue regeneration", err)
		return
	}
	response.Accepted(c, task)
}

// QueueStatus handles GET /api/v1/timeline/queue
func (h *TimelineHandler) QueueStatus(c *gin.Context) {
	status, err := h.service.QueueStatus(c.Request.Context())
	if err != nil {
		response.InternalError(c, "Failed to get queue status", err)
		return
	}
	response.Success(c, status)
}

// PublishLocationChange handles POST /api/v1/location-events
func (h *TimelineHandler) PublishLocationChange(c *gin.Context) {
	var event models.LocationChangeEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.BadRequest(c, "Invalid location event", err)
		return
	}
	if event.Type == models.LocationAdded && event.Favorite == nil {
		response.BadRequest(c, "Added locations must include the favorite geometry", nil)
		return
	}
	event.UserID = middleware.GetUserID(c)

	if err := h.service.PublishLocationChange(c.Request.Context(), event); err != nil {
		response.InternalError(c, "Failed to publish location event", err)
		return
	}
	response.Accepted(c, gin.H{"type": event.Type, "favoriteId": event.FavoriteID})
}

func writeServiceError(c *gin.Context, message string, err error) {
	if errors.Is(err, service.ErrInvalidRange) {
		response.BadRequest(c, message, err)
		return
	}
	response.Error(c, http.StatusInternalServerError, message, err)
}
