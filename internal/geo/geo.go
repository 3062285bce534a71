// Package geo implements the geodesic math shared by range gating and
// coverage analysis: great-circle distance, initial bearing, and bearing
// sector assignment.
package geo

import "math"

// EarthRadiusNM is the mean Earth radius in nautical miles.
const EarthRadiusNM = 3440.065

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// HaversineNM returns the great-circle distance between two WGS-84 points
// in nautical miles.
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := deg2rad(lat1), deg2rad(lat2)
	dphi := deg2rad(lat2 - lat1)
	dlambda := deg2rad(lon2 - lon1)

	a := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusNM * c
}

// InitialBearing returns the initial bearing in degrees [0, 360) from
// point 1 to point 2.
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := deg2rad(lat1), deg2rad(lat2)
	dlambda := deg2rad(lon2 - lon1)

	y := math.Sin(dlambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dlambda)

	theta := rad2deg(math.Atan2(y, x))
	return math.Mod(theta+360, 360)
}

// BearingSector returns the 45-degree sector index [0, 8) a bearing falls
// into. Sector 0 is North and straddles the 0/360 wraparound: it covers
// [337.5, 360) union [0, 22.5).
func BearingSector(bearingDeg float64) int {
	shifted := math.Mod(bearingDeg+22.5, 360)
	return int(shifted / 45)
}
