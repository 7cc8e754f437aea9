package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for every distance.
const EarthRadiusMeters = 6_371_000

// WalkingMetersPerMinute is an average walking pace (about 5 km/h).
const WalkingMetersPerMinute = 83.0

// Haversine returns the great-circle distance in meters between two lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Midpoint returns the arithmetic midpoint of two points. Good enough for
// the short segments of a route path.
func Midpoint(lat1, lon1, lat2, lon2 float64) (lat, lon float64) {
	return (lat1 + lat2) / 2, (lon1 + lon2) / 2
}

// BoundingBoxRadius returns the approximate degree offset for a given radius in meters
// at the specified latitude. Returns (latDeg, lonDeg).
func BoundingBoxRadius(lat, radiusMeters float64) (latDeg, lonDeg float64) {
	latDeg = radiusMeters / EarthRadiusMeters * (180 / math.Pi)
	lonDeg = latDeg / math.Cos(toRad(lat))
	return latDeg, lonDeg
}

// WalkingMinutes converts a distance in meters to minutes on foot.
func WalkingMinutes(meters float64) float64 {
	return meters / WalkingMetersPerMinute
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
