package mathhelp

import (
	"math"

	"golang.org/x/exp/constraints"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances
const EarthRadiusKm = 6371.01

// BetweenInc reports whether f lies in the closed range spanned by p and q, in either order.
func BetweenInc[T constraints.Integer | constraints.Float](f, p, q T) bool {
	if p <= q {
		return p <= f && f <= q
	}
	return q <= f && f <= p
}

// RoundHalfAway rounds to the nearest integer, halves away from zero.
func RoundHalfAway(f float64) int {
	return int(math.Round(f))
}

func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Haversine returns the great-circle distance in meters between two (lat, long) points given in degrees.
// https://en.wikipedia.org/wiki/Haversine_formula
func Haversine(fromLat, fromLong, toLat, toLong float64) float64 {
	phi1 := Radians(fromLat)
	phi2 := Radians(toLat)
	dPhi := Radians(toLat - fromLat)
	dLambda := Radians(toLong - fromLong)

	a := math.Pow(math.Sin(dPhi/2), 2) + math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLambda/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * 1000 * c
}

// EuclidianMod returns d modulo m with the sign of m
func EuclidianMod(d, m float64) float64 {
	r := math.Mod(d, m)
	if (r < 0 && m > 0) || (r > 0 && m < 0) {
		return r + m
	}
	return r
}
