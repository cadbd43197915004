// Package geo provides the GeoJSON point type and distance math shared by
// every proximity code path.
package geo

import (
	"errors"
	"math"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371

// Point is a GeoJSON-style geographic point.
// Coordinates are ordered [longitude, latitude] — longitude FIRST.
// Every query and annotation in the app goes through this one type so
// there is exactly one place where the ordering convention lives.
type Point struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewPoint builds a Point from a longitude/latitude pair.
func NewPoint(lng, lat float64) *Point {
	return &Point{Type: "Point", Coordinates: []float64{lng, lat}}
}

// Lng returns the longitude (first coordinate).
func (p *Point) Lng() float64 { return p.Coordinates[0] }

// Lat returns the latitude (second coordinate).
func (p *Point) Lat() float64 { return p.Coordinates[1] }

// ErrInvalidPoint reports a location that is not a well-formed GeoJSON point.
var ErrInvalidPoint = errors.New(`location must be GeoJSON: {type: "Point", coordinates: [longitude, latitude]}`)

// Validate checks that the point has type "Point" and exactly two finite
// numeric coordinates. A nil point is invalid; callers that treat location
// as optional check for nil themselves.
func (p *Point) Validate() error {
	if p == nil {
		return ErrInvalidPoint
	}
	if p.Type != "Point" {
		return ErrInvalidPoint
	}
	if len(p.Coordinates) != 2 {
		return ErrInvalidPoint
	}
	for _, c := range p.Coordinates {
		// NaN/Inf slip through JSON decoding of some clients; reject them here
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return ErrInvalidPoint
		}
	}
	return nil
}

// Distance returns the great-circle distance in kilometers between two
// points given as (latitude, longitude) degree pairs, computed with the
// haversine formula and rounded to three decimals (meter precision).
//
// Properties: Distance(A, A) == 0, Distance(A, B) == Distance(B, A),
// result is never negative.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	// Convert degree deltas and latitudes to radians
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)
	rLat1 := toRadians(lat1)
	rLat2 := toRadians(lat2)

	// Haversine: a is the squared half-chord length between the points
	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	a := sinLat*sinLat + math.Cos(rLat1)*math.Cos(rLat2)*sinLng*sinLng

	// c is the angular distance in radians
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	// Round to three decimals so callers get stable meter-precision values
	return math.Round(earthRadiusKm*c*1000) / 1000
}

// DistanceBetween is Distance applied to two Points. Both points must be
// valid; validate before calling.
func DistanceBetween(a, b *Point) float64 {
	return Distance(a.Lat(), a.Lng(), b.Lat(), b.Lng())
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
