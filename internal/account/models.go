package account

import (
	"time"

	"backend-carbonsaver/internal/carbon"
)

// Account is the running total of a user's trips, bonus points and redemptions.
type Account struct {
	UserID             string    `json:"user_id"`
	TotalPoints        int       `json:"total_points"`
	TotalDistanceKm    float64   `json:"total_distance_km"`
	TotalCarbonSavedKg float64   `json:"total_carbon_saved_kg"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Stats struct {
	Account
	TripsCompleted  int                `json:"trips_completed"`
	RedemptionCount int                `json:"redemption_count"`
	RecentTrips     []carbon.Trip      `json:"recent_trips"`
	Equivalents     carbon.Equivalents `json:"equivalents"`
}
