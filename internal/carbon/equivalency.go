package carbon

import "math"

const (
	// SmartphoneChargeFactor is kg CO2e per full smartphone charge.
	SmartphoneChargeFactor = 0.00822

	// TreeSeedlingFactor is kg CO2e absorbed by one tree seedling over 10 years.
	TreeSeedlingFactor = 60.0
)

// Equivalents expresses an amount of saved CO2 in everyday terms.
type Equivalents struct {
	CarbonKg          float64 `json:"carbon_kg"`
	CarKmAvoided      float64 `json:"car_km_avoided"`
	SmartphoneCharges float64 `json:"smartphone_charges"`
	TreeSeedlings     float64 `json:"tree_seedlings"`
}

// EquivalentsFor converts kg of CO2 into car km avoided, phone charges and
// tree seedlings.
func EquivalentsFor(kg float64) (Equivalents, error) {
	if kg < 0 || math.IsNaN(kg) {
		return Equivalents{}, ErrNegativeCarbon
	}
	return Equivalents{
		CarbonKg:          kg,
		CarKmAvoided:      kg / CarEquivalentEmission,
		SmartphoneCharges: kg / SmartphoneChargeFactor,
		TreeSeedlings:     kg / TreeSeedlingFactor,
	}, nil
}
