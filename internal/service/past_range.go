package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/metrics"
	"github.com/tess1o/geopulse-sub001/internal/models"
)

// PastRangeHandler serves fully past ranges cache-first
type PastRangeHandler struct {
	events    *EventStore
	processor RangeGenerator
	assembler *Assembler
	versions  *VersionService
	reporter  StaleReporter
	logger    *slog.Logger
	now       func() time.Time
}

// NewPastRangeHandler creates a new past-range handler. reporter may be nil.
func NewPastRangeHandler(events *EventStore, processor RangeGenerator, assembler *Assembler, versions *VersionService, reporter StaleReporter, logger *slog.Logger) *PastRangeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PastRangeHandler{
		events:    events,
		processor: processor,
		assembler: assembler,
		versions:  versions,
		reporter:  reporter,
		logger:    logger.With("component", "past_range_handler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle returns the cached timeline for [start, end). Days of the range
// with nothing cached are first regenerated whole from raw GPS.
func (h *PastRangeHandler) Handle(ctx context.Context, userID string, start, end time.Time) (*models.TimelineSnapshot, error) {
	missing, err := h.events.MissingDays(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		for _, run := range dayRuns(missing) {
			if err := h.events.DeleteTimelineData(ctx, userID, run.start, run.end); err != nil {
				return nil, err
			}
			if err := h.processor.GenerateRange(ctx, userID, run.start, run.end); err != nil {
				if errors.Is(err, ErrDetectionFailed) {
					h.logger.Warn("detection failed, returning empty timeline", "user_id", userID, "error", err)
					return models.NewSnapshot(userID, models.DataSourceCached, h.now()), nil
				}
				return nil, err
			}
		}
	}

	snapshot, err := h.events.GetExistingEvents(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	staleDays := h.staleDays(ctx, userID, snapshot)
	switch {
	case len(staleDays) > 0:
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		snapshot.IsStale = true
		snapshot.DataSource = models.DataSourceRegenerating
		if h.reporter != nil {
			if err := h.reporter.ReportStale(ctx, userID, staleDays); err != nil {
				h.logger.Warn("failed to report stale days", "user_id", userID, "error", err)
			}
		}
	case len(missing) == 0:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
	}

	if err := h.assembler.Enhance(ctx, snapshot, start); err != nil {
		return nil, err
	}
	return snapshot, nil
}

type dayRange struct {
	start, end time.Time
}

// dayRuns folds sorted day starts into contiguous [start, end) ranges
func dayRuns(days []time.Time) []dayRange {
	var runs []dayRange
	for _, d := range days {
		next := d.AddDate(0, 0, 1)
		if n := len(runs); n > 0 && runs[n-1].end.Equal(d) {
			runs[n-1].end = next
			continue
		}
		runs = append(runs, dayRange{start: d, end: next})
	}
	return runs
}

// staleDays returns the days whose cached events carry an outdated
// fingerprint or an explicit stale flag
func (h *PastRangeHandler) staleDays(ctx context.Context, userID string, snapshot *models.TimelineSnapshot) []time.Time {
	current := map[time.Time]string{}
	stale := map[time.Time]bool{}

	check := func(start time.Time, version string, flagged bool) {
		day := models.DayStart(start)
		v, ok := current[day]
		if !ok {
			var err error
			v, err = h.versions.Compute(ctx, userID, day)
			if err != nil {
				h.logger.Warn("version check failed", "user_id", userID, "day", day, "error", err)
				return
			}
			current[day] = v
		}
		if flagged || !h.versions.IsCurrent(version, v) {
			stale[day] = true
		}
	}

	for _, st := range snapshot.Stays {
		check(st.StartTime, st.TimelineVersion, st.IsStale)
	}
	for _, tr := range snapshot.Trips {
		check(tr.StartTime, tr.TimelineVersion, tr.IsStale)
	}

	days := make([]time.Time, 0, len(stale))
	for d := range stale {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}
