package tracking

import (
	"time"

	"backend-carbonsaver/internal/carbon"
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDiscarded = "discarded"
)

type Session struct {
	ID                 string                    `json:"id"`
	UserID             string                    `json:"user_id"`
	TransportationType carbon.TransportationType `json:"transportation_type"`
	StartedAt          time.Time                 `json:"started_at"`
	EndedAt            *time.Time                `json:"ended_at,omitempty"`
	TotalDistanceKm    float64                   `json:"total_distance_km"`
	Status             string                    `json:"status"`
	TripID             *string                   `json:"trip_id,omitempty"`
}

type StartRequest struct {
	TransportationType carbon.TransportationType `json:"transportation_type"`
}

type TrackPoint struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

// SampleResult reports whether a sample passed the distance filter and the
// session's running distance afterwards.
type SampleResult struct {
	Accepted        bool        `json:"accepted"`
	Point           *TrackPoint `json:"point,omitempty"`
	TotalDistanceKm float64     `json:"total_distance_km"`
}

type Summary struct {
	SessionID          string                    `json:"session_id"`
	Status             string                    `json:"status"`
	TransportationType carbon.TransportationType `json:"transportation_type"`
	PointCount         int                       `json:"point_count"`
	DistanceKm         float64                   `json:"distance_km"`
	DurationSec        int64                     `json:"duration_sec"`
	Duration           string                    `json:"duration"`
	CarbonSavedKg      float64                   `json:"carbon_saved_kg"`
	PointsEarned       int                       `json:"points_earned"`
	AverageSpeedKmh    float64                   `json:"average_speed_kmh"`
}

func (p TrackPoint) location() carbon.LocationPoint {
	return carbon.LocationPoint{Latitude: p.Latitude, Longitude: p.Longitude, Timestamp: p.RecordedAt}
}
