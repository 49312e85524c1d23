package trip

import "backend-carbonsaver/internal/carbon"

// RecordRequest is a completed trip submitted by a client that tracked it
// offline. DistanceKm is derived from the locations when omitted.
type RecordRequest struct {
	TransportationType carbon.TransportationType `json:"transportation_type"`
	DistanceKm         *float64                  `json:"distance_km"`
	DurationSec        float64                   `json:"duration_sec"`
	Locations          []carbon.LocationPoint    `json:"locations"`
}
