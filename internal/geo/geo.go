// Package geo implements great-circle geometry on a spherical Earth.
//
// Coordinates are in degrees. Distances returned by the Angular* functions and
// bearings are in radians; Distance and the *Meters helpers return metres.
package geo

import (
	"math"

	"trainfinder/internal/domain"
)

// EarthRadius is the mean Earth radius in metres
const EarthRadius = 6371008.8

const halfPi = math.Pi / 2

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// AngularDistance returns the central angle between a and b using the haversine formula
func AngularDistance(a, b domain.Coordinate) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*sinLon*sinLon
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Distance returns the great-circle distance between a and b in metres
func Distance(a, b domain.Coordinate) float64 {
	return AngularDistance(a, b) * EarthRadius
}

// Bearing returns the forward azimuth from a to b in radians, in (-π, π]
func Bearing(a, b domain.Coordinate) float64 {
	lat1, lon1 := toRadians(a.Lat), toRadians(a.Lon)
	lat2, lon2 := toRadians(b.Lat), toRadians(b.Lon)

	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	return math.Atan2(y, x)
}

// BearingDegrees converts a bearing in radians to compass degrees in [0, 360)
func BearingDegrees(rad float64) float64 {
	deg := math.Mod(toDegrees(rad), 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// BearingDifference returns the smallest absolute difference between two
// compass bearings in degrees, in [0, 180]
func BearingDifference(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Interpolate moves along the great circle from a towards b. f=0 yields a, f=1 yields b.
func Interpolate(a, b domain.Coordinate, f float64) domain.Coordinate {
	delta := AngularDistance(a, b)
	if delta == 0 {
		return a
	}

	sinDelta := math.Sin(delta)
	wa := math.Sin((1-f)*delta) / sinDelta
	wb := math.Sin(f*delta) / sinDelta

	lat1, lon1 := toRadians(a.Lat), toRadians(a.Lon)
	lat2, lon2 := toRadians(b.Lat), toRadians(b.Lon)

	x := wa*math.Cos(lat1)*math.Cos(lon1) + wb*math.Cos(lat2)*math.Cos(lon2)
	y := wa*math.Cos(lat1)*math.Sin(lon1) + wb*math.Cos(lat2)*math.Sin(lon2)
	z := wa*math.Sin(lat1) + wb*math.Sin(lat2)

	return domain.Coordinate{
		Lat: toDegrees(math.Atan2(z, math.Sqrt(x*x+y*y))),
		Lon: toDegrees(math.Atan2(y, x)),
	}
}

// similarDirection reports whether two bearings are less than 90 degrees apart
func similarDirection(b1, b2 float64) bool {
	d := math.Abs(b1 - b2)
	return math.Min(2*math.Pi-d, d) < halfPi
}

// CrossTrackDistance returns the signed angular distance of p from the segment a-b.
// When p does not project onto the segment, the distance to the nearer endpoint
// is returned instead.
func CrossTrackDistance(a, b, p domain.Coordinate) float64 {
	bearingAB := Bearing(a, b)
	bearingAP := Bearing(a, p)

	if !similarDirection(bearingAB, bearingAP) {
		return AngularDistance(a, p)
	}
	if similarDirection(Bearing(b, p), bearingAB) {
		return AngularDistance(b, p)
	}

	return math.Asin(math.Sin(AngularDistance(a, p)) * math.Sin(bearingAP-bearingAB))
}

// CrossTrackMeters is CrossTrackDistance in metres
func CrossTrackMeters(a, b, p domain.Coordinate) float64 {
	return CrossTrackDistance(a, b, p) * EarthRadius
}

// AlongTrackDistance returns the angular distance from a to the point on segment a-b closest to p.
// It is clamped to [0, AngularDistance(a, b)].
func AlongTrackDistance(a, b, p domain.Coordinate) float64 {
	if !similarDirection(Bearing(b, a), Bearing(b, p)) {
		return AngularDistance(a, b)
	}

	cosXt := math.Cos(CrossTrackDistance(a, b, p))
	if cosXt == 0 {
		return 0
	}
	ratio := math.Cos(AngularDistance(a, p)) / cosXt
	// rounding can push the ratio just past 1 for points on the segment
	if ratio > 1 {
		ratio = 1
	} else if ratio < -1 {
		ratio = -1
	}
	return math.Acos(ratio)
}

// AlongTrackMeters is AlongTrackDistance in metres
func AlongTrackMeters(a, b, p domain.Coordinate) float64 {
	return AlongTrackDistance(a, b, p) * EarthRadius
}

// ProjectOnSegment returns the point on segment a-b closest to p
func ProjectOnSegment(a, b, p domain.Coordinate) domain.Coordinate {
	segment := AngularDistance(a, b)
	if segment == 0 {
		return a
	}
	return Interpolate(a, b, AlongTrackDistance(a, b, p)/segment)
}
