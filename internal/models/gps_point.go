package models

import "time"

// GPSPoint is a raw GPS fix as delivered by the point source
type GPSPoint struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Accuracy  float64   `json:"accuracy" db:"accuracy"` // meters
	Velocity  float64   `json:"velocity" db:"velocity"` // m/s
}
