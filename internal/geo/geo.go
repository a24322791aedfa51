// Package geo holds the point type shared by the store and the nearby matcher
// together with great-circle distance on the same sphere PostGIS uses for
// geography calculations with use_spheroid=false.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean radius PostGIS uses for spherical geography math.
const EarthRadiusMeters = 6371008.771415

// Point is a GeoJSON-style point. Coordinates are always [longitude, latitude].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewPoint builds a point from longitude and latitude, in that order.
func NewPoint(lng, lat float64) *Point {
	return &Point{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

func (p Point) Lng() float64 { return p.Coordinates[0] }
func (p Point) Lat() float64 { return p.Coordinates[1] }

// Validate checks coordinate ranges. A swapped pair usually fails here first.
func (p Point) Validate() error {
	if p.Type != "" && p.Type != "Point" {
		return fmt.Errorf("unsupported geometry type %q", p.Type)
	}
	lng, lat := p.Lng(), p.Lat()
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("coordinates must be finite")
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lng)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	return nil
}

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b Point) float64 {
	lat1 := toRadians(a.Lat())
	lat2 := toRadians(b.Lat())
	dLat := lat2 - lat1
	dLng := toRadians(b.Lng() - a.Lng())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Within reports whether b lies within radiusMeters of a, boundary inclusive.
func Within(a, b Point, radiusMeters float64) bool {
	return DistanceMeters(a, b) <= radiusMeters
}

// Effective returns the slot-level point when present, else the clinic point.
func Effective(slot, clinic *Point) *Point {
	if slot != nil {
		return slot
	}
	return clinic
}

// KilometersToMeters converts a caller-facing kilometre radius.
func KilometersToMeters(km float64) float64 {
	return km * 1000
}

// Offset returns the point reached by travelling distanceMeters from p along
// the given bearing in degrees (0 = north). Used to build boundary fixtures.
func Offset(p Point, distanceMeters, bearingDegrees float64) Point {
	delta := distanceMeters / EarthRadiusMeters
	theta := toRadians(bearingDegrees)
	lat1 := toRadians(p.Lat())
	lng1 := toRadians(p.Lng())

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lng2 := lng1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)
	return *NewPoint(toDegrees(lng2), toDegrees(lat2))
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
