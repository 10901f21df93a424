// Package geo wraps the spherical helpers used by donor matching: point
// construction, great-circle distance in kilometres, and the bounding box
// used to prefilter radius queries in SQL.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Point is a (longitude, latitude) pair.
type Point = orb.Point

// NewPoint builds a Point from longitude and latitude.
func NewPoint(lng, lat float64) Point { return orb.Point{lng, lat} }

// ValidCoordinates reports whether lat/lng are finite and within range.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// DistanceKm returns the haversine distance between a and b in kilometres.
func DistanceKm(a, b Point) float64 {
	return orbgeo.DistanceHaversine(a, b) / 1000
}

// Bounds is a lat/lng rectangle.
type Bounds struct {
	MinLng, MaxLng float64
	MinLat, MaxLat float64
}

// BoundsAround returns a rectangle containing every point within radiusKm of
// center. It over-approximates the circle, so callers filter by DistanceKm.
// A rectangle that wraps the antimeridian widens to the full longitude band.
func BoundsAround(center Point, radiusKm float64) Bounds {
	b := orbgeo.NewBoundAroundPoint(center, radiusKm*1000)
	out := Bounds{
		MinLng: math.Max(b.Min.Lon(), -180),
		MaxLng: math.Min(b.Max.Lon(), 180),
		MinLat: math.Max(b.Min.Lat(), -90),
		MaxLat: math.Min(b.Max.Lat(), 90),
	}
	if out.MinLng > out.MaxLng {
		out.MinLng, out.MaxLng = -180, 180
	}
	return out
}

// Contains reports whether p lies inside the rectangle.
func (b Bounds) Contains(p Point) bool {
	return p.Lon() >= b.MinLng && p.Lon() <= b.MaxLng && p.Lat() >= b.MinLat && p.Lat() <= b.MaxLat
}

// OffsetKm returns a point roughly dNorthKm north and dEastKm east of p.
// It is accurate enough for building fixtures a few tens of km apart.
func OffsetKm(p Point, dNorthKm, dEastKm float64) Point {
	const kmPerDegLat = 111.32
	lat := p.Lat() + dNorthKm/kmPerDegLat
	lng := p.Lon() + dEastKm/(kmPerDegLat*math.Cos(p.Lat()*math.Pi/180))
	return NewPoint(lng, lat)
}
