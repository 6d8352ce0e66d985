// Package geo provides the spherical-earth primitives shared by the coverage
// graph, the cluster index and dead-end recovery.
package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean earth radius (IUGG).
const EarthRadiusMeters = 6371008.8

// metersPerDegreeLat is the length of one degree of latitude on the sphere.
const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

// InvalidCell is returned by CellKey for positions that cannot be quantised.
const InvalidCell = "invalid"

// LatLng is a WGS84 position in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are finite and in range.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Round returns p rounded to the given number of decimal places.
func (p LatLng) Round(decimals int) LatLng {
	scale := math.Pow(10, float64(decimals))
	return LatLng{
		Lat: math.Round(p.Lat*scale) / scale,
		Lng: math.Round(p.Lng*scale) / scale,
	}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance in meters.
func Distance(a, b LatLng) float64 {
	return a.toS2().Distance(b.toS2()).Radians() * EarthRadiusMeters
}

func (p LatLng) toS2() s2.LatLng { return s2.LatLngFromDegrees(p.Lat, p.Lng) }

// Bearing returns the initial bearing from a to b in degrees [0, 360).
// s2 has no azimuth helper, so this and Project use the spherical formulas.
func Bearing(a, b LatLng) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLng := rad(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return NormalizeHeading(deg(math.Atan2(y, x)))
}

// Project moves p along heading (degrees clockwise from north) by meters.
func Project(p LatLng, heading, meters float64) LatLng {
	delta := meters / EarthRadiusMeters
	theta := rad(heading)
	lat1 := rad(p.Lat)
	lng1 := rad(p.Lng)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lng2 := lng1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	return LatLng{
		Lat: deg(lat2),
		Lng: math.Mod(deg(lng2)+540, 360) - 180,
	}
}

// NormalizeHeading folds any angle into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// CellKey quantises p into a square grid cell of roughly cellMeters on a side.
// The longitude step is scaled by cos(lat) so cells stay square away from the
// equator. Invalid input yields InvalidCell; cell keys are advisory only.
func CellKey(p LatLng, cellMeters float64) string {
	if !p.Valid() || !(cellMeters > 0) || math.IsInf(cellMeters, 0) {
		return InvalidCell
	}
	row := int64(math.Floor(p.Lat * metersPerDegreeLat / cellMeters))
	scale := math.Cos(rad(p.Lat))
	if scale < 1e-9 {
		scale = 1e-9
	}
	col := int64(math.Floor(p.Lng * metersPerDegreeLat * scale / cellMeters))
	return fmt.Sprintf("%d:%d", row, col)
}
