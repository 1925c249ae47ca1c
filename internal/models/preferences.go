package models

// TimelinePreferences holds per-user generation settings.
// Every field here feeds the timeline version fingerprint.
type TimelinePreferences struct {
	UserID string `json:"userId" db:"user_id"`

	// Staypoint detection
	StaypointRadiusMeters  float64 `json:"staypointRadiusMeters" db:"staypoint_radius_meters"`
	StayMinDurationSeconds int64   `json:"stayMinDurationSeconds" db:"stay_min_duration_seconds"`
	TripMinDistanceMeters  float64 `json:"tripMinDistanceMeters" db:"trip_min_distance_meters"`
	TripMinDurationSeconds int64   `json:"tripMinDurationSeconds" db:"trip_min_duration_seconds"`
	MaxPointGapSeconds     int64   `json:"maxPointGapSeconds" db:"max_point_gap_seconds"`
	Algorithm              string  `json:"algorithm" db:"algorithm"`

	// Stay merging
	MergeEnabled           bool    `json:"mergeEnabled" db:"merge_enabled"`
	MergeMaxDistanceMeters float64 `json:"mergeMaxDistanceMeters" db:"merge_max_distance_meters"`
	MergeMaxGapSeconds     int64   `json:"mergeMaxGapSeconds" db:"merge_max_gap_seconds"`

	// Data gaps, nil disables gap detection
	DataGapThresholdSeconds   *int64 `json:"dataGapThresholdSeconds,omitempty" db:"data_gap_threshold_seconds"`
	DataGapMinDurationSeconds *int64 `json:"dataGapMinDurationSeconds,omitempty" db:"data_gap_min_duration_seconds"`
}

// Algorithm constants
const (
	AlgorithmStaypoint = "STAYPOINT"
)

// DefaultTimelinePreferences returns the settings used when a user has none
// stored. Data gaps are off until a user sets a threshold.
func DefaultTimelinePreferences(userID string) *TimelinePreferences {
	return &TimelinePreferences{
		UserID:                 userID,
		StaypointRadiusMeters:  50,
		StayMinDurationSeconds: 7 * 60,
		TripMinDistanceMeters:  50,
		TripMinDurationSeconds: 60,
		MaxPointGapSeconds:     60 * 60,
		Algorithm:              AlgorithmStaypoint,
		MergeEnabled:           true,
		MergeMaxDistanceMeters: 400,
		MergeMaxGapSeconds:     15 * 60,
	}
}

// GapThreshold returns the data-gap threshold in seconds, 0 when disabled
func (p *TimelinePreferences) GapThreshold() int64 {
	if p == nil || p.DataGapThresholdSeconds == nil {
		return 0
	}
	return *p.DataGapThresholdSeconds
}

// GapMinDuration returns the minimum data-gap duration in seconds, 0 when unset
func (p *TimelinePreferences) GapMinDuration() int64 {
	if p == nil || p.DataGapMinDurationSeconds == nil {
		return 0
	}
	return *p.DataGapMinDurationSeconds
}
