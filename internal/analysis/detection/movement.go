package detection

import "github.com/tess1o/geopulse-sub001/internal/models"

// ClassifyMovement classifies a trip by its average speed.
// Speed thresholds (m/s):
// WALK: 0-2 m/s (0-7.2 km/h)
// BICYCLE: 2-8 m/s (7.2-28.8 km/h)
// CAR: 8-40 m/s (28.8-144 km/h)
// TRAIN: 40-60 m/s (144-216 km/h)
// FLIGHT: >60 m/s (>216 km/h)
func ClassifyMovement(distanceMeters float64, durationSeconds int64) models.MovementType {
	if durationSeconds <= 0 {
		return models.MovementUnknown
	}

	speed := distanceMeters / float64(durationSeconds)
	if speed < 2.0 {
		return models.MovementWalk
	} else if speed < 8.0 {
		return models.MovementBicycle
	} else if speed < 40.0 {
		return models.MovementCar
	} else if speed < 60.0 {
		return models.MovementTrain
	}
	return models.MovementFlight
}
