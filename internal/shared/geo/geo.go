package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates in km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Coord is a latitude/longitude pair.
type Coord struct {
	Lat float64
	Lng float64
}

// PathDistanceKm sums the pairwise distances along an ordered path.
func PathDistanceKm(path []Coord) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += HaversineKm(path[i-1].Lat, path[i-1].Lng, path[i].Lat, path[i].Lng)
	}
	return total
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
