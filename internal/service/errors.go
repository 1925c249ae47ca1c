package service

import "errors"

var (
	// ErrInvalidRange is returned for ranges that end before they start or are empty
	ErrInvalidRange = errors.New("invalid range")

	// ErrDetectionFailed wraps failures of the detection engine. Interactive
	// paths degrade to an empty timeline; background work retries.
	ErrDetectionFailed = errors.New("timeline detection failed")
)
