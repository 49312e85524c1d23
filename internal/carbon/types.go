// Package carbon holds the pure domain rules of the service: transport modes,
// how much CO2 a trip avoids compared with driving, and how that converts
// into loyalty points.
package carbon

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// CarEquivalentEmission is the kg CO2 emitted per km by an average car, the
// baseline every trip is compared against.
const CarEquivalentEmission = 0.171

// PointsPerKgCO2 converts kg of CO2 saved per km into points per km.
const PointsPerKgCO2 = 10000

// TransportationType is a mode of travel a trip can be recorded with.
type TransportationType string

const (
	Walking TransportationType = "walking"
	Cycling TransportationType = "cycling"
	Bus     TransportationType = "bus"
	Train   TransportationType = "train"
	Metro   TransportationType = "metro"
)

// TransportationTypes lists every mode in display order.
var TransportationTypes = []TransportationType{Walking, Cycling, Bus, Train, Metro}

// ParseTransportationType accepts either the key ("cycling") or the display
// label ("Cycling"), case-insensitive.
func ParseTransportationType(s string) (TransportationType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, t := range TransportationTypes {
		if string(t) == key {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTransportation, s)
}

// Label is the human-readable name of the mode.
func (t TransportationType) Label() string {
	switch t {
	case Walking:
		return "Walking"
	case Cycling:
		return "Cycling"
	case Bus:
		return "Bus"
	case Train:
		return "Train"
	case Metro:
		return "Metro"
	default:
		return string(t)
	}
}

// Valid reports whether t is a known mode.
func (t TransportationType) Valid() bool {
	_, err := ParseTransportationType(string(t))
	return err == nil
}

// EmissionPerKm is the kg CO2 attributed to the traveller per km.
//
// Public transport runs whether or not one more person boards, so bus, train
// and metro are counted as zero like walking and cycling.
func (t TransportationType) EmissionPerKm() float64 {
	switch t {
	case Walking, Cycling, Bus, Train, Metro:
		return 0.0
	default:
		return CarEquivalentEmission
	}
}

// CarbonSavedPerKm is the kg CO2 avoided per km compared with a car.
func (t TransportationType) CarbonSavedPerKm() float64 {
	return CarEquivalentEmission - t.EmissionPerKm()
}

// PointsPerKm is floor(CarbonSavedPerKm * PointsPerKgCO2).
func (t TransportationType) PointsPerKm() int {
	return int(math.Floor(t.CarbonSavedPerKm() * PointsPerKgCO2))
}

// UnmarshalJSON accepts keys and labels.
func (t *TransportationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*t = ""
		return nil
	}
	parsed, err := ParseTransportationType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ModeInfo describes a transportation mode for clients.
type ModeInfo struct {
	Type             TransportationType `json:"type"`
	Label            string             `json:"label"`
	EmissionPerKm    float64            `json:"emission_per_km"`
	CarbonSavedPerKm float64            `json:"carbon_saved_per_km"`
	PointsPerKm      int                `json:"points_per_km"`
}

// Modes returns the per-km figures for every mode.
func Modes() []ModeInfo {
	modes := make([]ModeInfo, 0, len(TransportationTypes))
	for _, t := range TransportationTypes {
		modes = append(modes, ModeInfo{
			Type:             t,
			Label:            t.Label(),
			EmissionPerKm:    t.EmissionPerKm(),
			CarbonSavedPerKm: t.CarbonSavedPerKm(),
			PointsPerKm:      t.PointsPerKm(),
		})
	}
	return modes
}
