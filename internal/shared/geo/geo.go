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

// HaversineM returns the great-circle distance in meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineKm(lat1, lng1, lat2, lng2) * 1000
}

// Distance3DM returns the distance in meters between two coordinates with a
// Pythagorean altitude correction. elev1/elev2 are meters above sea level.
func Distance3DM(lat1, lng1, elev1, lat2, lng2, elev2 float64) float64 {
	horizontal := HaversineM(lat1, lng1, lat2, lng2)
	dElev := elev2 - elev1
	return math.Sqrt(horizontal*horizontal + dElev*dElev)
}

// Bearing returns the initial bearing in degrees from point 1 to point 2.
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	dLng := toRad(lng2 - lng1)
	y := math.Sin(dLng) * math.Cos(toRad(lat2))
	x := math.Cos(toRad(lat1))*math.Sin(toRad(lat2)) -
		math.Sin(toRad(lat1))*math.Cos(toRad(lat2))*math.Cos(dLng)
	return math.Mod(toDeg(math.Atan2(y, x))+360, 360)
}

// PointAtDistance returns the coordinate reached by travelling distanceM meters
// from (lat, lng) along bearingDeg.
func PointAtDistance(lat, lng, bearingDeg, distanceM float64) (float64, float64) {
	angular := distanceM / (earthRadiusKm * 1000)
	brg := toRad(bearingDeg)
	lat1 := toRad(lat)
	lng1 := toRad(lng)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(
		math.Sin(brg)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	return toDeg(lat2), toDeg(lng2)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
