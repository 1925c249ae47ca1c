// Package metrics holds the prometheus collectors for the timeline engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TimelineRequests counts timeline requests by route classification and data source
	TimelineRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_requests_total",
		Help: "Timeline requests by range classification and resulting data source",
	}, []string{"classification", "source"})

	// CacheLookups counts past-range cache checks by result (hit, miss, stale)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_cache_lookups_total",
		Help: "Past-range cache lookups by result",
	}, []string{"result"})

	// GenerationDuration tracks how long a generation run takes
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_generation_duration_seconds",
		Help:    "Timeline generation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	}, []string{"mode"})

	// OvernightConsistencyWarnings counts in-place extensions that did not touch exactly one row
	OvernightConsistencyWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_overnight_update_mismatch_total",
		Help: "Overnight extensions where the update did not affect exactly one row",
	})

	// InvalidationQueueDepth is the number of (user, day) keys waiting in the invalidation queue
	InvalidationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_invalidation_queue_depth",
		Help: "Pending (user, day) keys in the invalidation queue",
	})

	// InvalidationItems counts processed invalidation items by outcome
	InvalidationItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_invalidation_items_total",
		Help: "Invalidation items by outcome and strategy",
	}, []string{"outcome", "strategy"})

	// RegenerationTasks counts regeneration task outcomes by priority
	RegenerationTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_regeneration_tasks_total",
		Help: "Regeneration task outcomes by priority",
	}, []string{"priority", "outcome"})
)
