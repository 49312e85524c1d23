package carbon

// constError is an immutable error type for sentinel errors.
type constError string

func (e constError) Error() string { return string(e) }

var (
	// ErrUnknownTransportation is returned for a mode that is not in TransportationTypes.
	ErrUnknownTransportation = constError("unknown transportation type")

	// ErrNegativeDistance is returned when a trip is built with a distance below zero.
	ErrNegativeDistance = constError("negative distance")

	// ErrDistanceTooLarge is returned for a distance above MaxTripDistanceKm.
	ErrDistanceTooLarge = constError("distance exceeds the per-trip maximum")

	// ErrNegativeDuration is returned when a trip is built with a duration below zero.
	ErrNegativeDuration = constError("negative duration")

	// ErrNegativeCarbon is returned by Equivalents for a negative amount.
	ErrNegativeCarbon = constError("negative carbon value")

	// ErrUnknownRedemption is returned for a redemption type outside the catalog.
	ErrUnknownRedemption = constError("unknown redemption type")

	// ErrInsufficientPoints matches every *InsufficientPointsError.
	ErrInsufficientPoints = constError("insufficient points")
)
