package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

// MixedHandler serves ranges that include today: history from the cache,
// today generated live and never persisted
type MixedHandler struct {
	past      *PastRangeHandler
	generator *Generator
	assembler *Assembler
	prefs     PreferenceStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewMixedHandler creates a new mixed handler
func NewMixedHandler(past *PastRangeHandler, generator *Generator, assembler *Assembler, prefs PreferenceStore, logger *slog.Logger) *MixedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MixedHandler{
		past:      past,
		generator: generator,
		assembler: assembler,
		prefs:     prefs,
		logger:    logger.With("component", "mixed_handler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle returns the timeline for a range that touches today
func (h *MixedHandler) Handle(ctx context.Context, userID string, start, end time.Time) (*models.TimelineSnapshot, error) {
	now := h.now()
	todayStart := models.DayStart(now)

	prefs, err := h.prefs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var past *models.TimelineSnapshot
	if start.Before(todayStart) {
		past, err = h.past.Handle(ctx, userID, start, todayStart)
		if err != nil {
			return nil, err
		}
	}

	today := models.NewSnapshot(userID, models.DataSourceLive, now)
	liveStart := maxTime(start, todayStart)
	liveEnd := minTime(end, now)
	if liveEnd.After(liveStart) {
		generated, err := h.generator.Generate(ctx, userID, liveStart, liveEnd, prefs)
		switch {
		case errors.Is(err, ErrDetectionFailed):
			h.logger.Warn("live detection failed, returning history only", "user_id", userID, "error", err)
		case err != nil:
			return nil, err
		default:
			today.Stays = generated.Stays
			today.Trips = generated.Trips
			today.DataGaps = capGaps(generated.Gaps, now)
			today.SortEvents()
		}
	}

	if past != nil && !past.IsEmpty() {
		return h.assembler.Combine(past, today, prefs), nil
	}

	if err := h.assembler.Enhance(ctx, today, start); err != nil {
		return nil, err
	}
	return today, nil
}

// capGaps clips open-ended gaps at now; nothing is recorded for the future
func capGaps(gaps []models.DataGap, now time.Time) []models.DataGap {
	out := make([]models.DataGap, 0, len(gaps))
	for _, g := range gaps {
		if !g.StartTime.Before(now) {
			continue
		}
		if g.EndTime.After(now) {
			g.EndTime = now
		}
		out = append(out, g)
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
