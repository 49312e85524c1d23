package carbon

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxTripDistanceKm bounds a single trip at one equatorial circumference.
const MaxTripDistanceKm = 40075.0

// LocationPoint is a single position sample.
type LocationPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Trip is a completed tracking session. Carbon and points are derived once,
// from distance and mode, when the trip is built.
type Trip struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	Date               time.Time          `json:"date"`
	TransportationType TransportationType `json:"transportation_type"`
	DistanceKm         float64            `json:"distance_km"`
	CarbonSavedKg      float64            `json:"carbon_saved_kg"`
	PointsEarned       int                `json:"points_earned"`
	Locations          []LocationPoint    `json:"locations"`
	DurationSec        float64            `json:"duration_sec"`
}

// NewTrip builds a trip dated now.
func NewTrip(mode TransportationType, distanceKm float64, locations []LocationPoint, duration time.Duration) (Trip, error) {
	if !mode.Valid() {
		return Trip{}, fmt.Errorf("%w: %q", ErrUnknownTransportation, mode)
	}
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		return Trip{}, ErrNegativeDistance
	}
	if distanceKm > MaxTripDistanceKm {
		return Trip{}, fmt.Errorf("%w: %g km", ErrDistanceTooLarge, distanceKm)
	}
	if duration < 0 {
		return Trip{}, ErrNegativeDuration
	}
	if locations == nil {
		locations = []LocationPoint{}
	}
	return Trip{
		ID:                 uuid.NewString(),
		Date:               time.Now().UTC(),
		TransportationType: mode,
		DistanceKm:         distanceKm,
		CarbonSavedKg:      CarbonSaved(mode, distanceKm),
		PointsEarned:       PointsEarned(mode, distanceKm),
		Locations:          locations,
		DurationSec:        duration.Seconds(),
	}, nil
}

// CarbonSaved is distanceKm * CarbonSavedPerKm.
func CarbonSaved(mode TransportationType, distanceKm float64) float64 {
	return distanceKm * mode.CarbonSavedPerKm()
}

// PointsEarned is floor(distanceKm * PointsPerKm), zero for empty trips. The
// result saturates at math.MaxInt instead of wrapping.
func PointsEarned(mode TransportationType, distanceKm float64) int {
	if distanceKm <= 0 || math.IsNaN(distanceKm) {
		return 0
	}
	points := math.Floor(distanceKm * float64(mode.PointsPerKm()))
	if points >= float64(math.MaxInt) {
		return math.MaxInt
	}
	return int(points)
}

// Duration returns the trip length as a time.Duration.
func (t Trip) Duration() time.Duration {
	return time.Duration(t.DurationSec * float64(time.Second))
}

// TripSummary is the condensed view shown once a trip completes.
type TripSummary struct {
	TripID             string             `json:"trip_id"`
	TransportationType TransportationType `json:"transportation_type"`
	Label              string             `json:"label"`
	DistanceKm         float64            `json:"distance_km"`
	Duration           string             `json:"duration"`
	CarbonSavedKg      float64            `json:"carbon_saved_kg"`
	PointsEarned       int                `json:"points_earned"`
	RoutePoints        int                `json:"route_points"`
	Start              *LocationPoint     `json:"start,omitempty"`
	End                *LocationPoint     `json:"end,omitempty"`
	AverageSpeedKmh    float64            `json:"average_speed_kmh"`
}

// Summary condenses the trip.
func (t Trip) Summary() TripSummary {
	s := TripSummary{
		TripID:             t.ID,
		TransportationType: t.TransportationType,
		Label:              t.TransportationType.Label(),
		DistanceKm:         t.DistanceKm,
		Duration:           FormatDuration(t.Duration()),
		CarbonSavedKg:      t.CarbonSavedKg,
		PointsEarned:       t.PointsEarned,
		RoutePoints:        len(t.Locations),
		AverageSpeedKmh:    AverageSpeedKmh(t.DistanceKm, t.Duration()),
	}
	if n := len(t.Locations); n > 0 {
		start, end := t.Locations[0], t.Locations[n-1]
		s.Start = &start
		s.End = &end
	}
	return s
}

// AverageSpeedKmh returns 0 for a zero duration.
func AverageSpeedKmh(distanceKm float64, d time.Duration) float64 {
	hours := d.Hours()
	if hours <= 0 {
		return 0
	}
	return distanceKm / hours
}

// FormatDuration renders h:mm:ss, or m:ss under an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := total / 60 % 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
