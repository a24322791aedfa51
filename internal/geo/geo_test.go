package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointKeepsLngLatOrder(t *testing.T) {
	p := NewPoint(-122.4194, 37.7749)
	assert.Equal(t, -122.4194, p.Lng())
	assert.Equal(t, 37.7749, p.Lat())

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[-122.4194,37.7749]}`, string(raw))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, NewPoint(-122.4194, 37.7749).Validate())
	assert.NoError(t, (&Point{Coordinates: [2]float64{10, 10}}).Validate())
	assert.Error(t, NewPoint(37.7749, -122.4194).Validate(), "swapped pair puts latitude out of range")
	assert.Error(t, NewPoint(181, 0).Validate())
	assert.Error(t, NewPoint(math.NaN(), 0).Validate())
	assert.Error(t, (&Point{Type: "Polygon"}).Validate())
}

func TestDistanceMeters(t *testing.T) {
	sf := *NewPoint(-122.4194, 37.7749)
	near := *NewPoint(-122.4195, 37.7750)
	d := DistanceMeters(sf, near)
	assert.InDelta(t, 14.1, d, 0.5)
	assert.Zero(t, DistanceMeters(sf, sf))

	// one degree of latitude on this sphere
	oneDeg := DistanceMeters(*NewPoint(0, 0), *NewPoint(0, 1))
	assert.InDelta(t, EarthRadiusMeters*math.Pi/180, oneDeg, 1e-6)
}

func TestOffsetRoundTrip(t *testing.T) {
	origin := *NewPoint(-122.4194, 37.7749)
	for _, bearing := range []float64{0, 45, 90, 180, 270} {
		p := Offset(origin, 500, bearing)
		assert.InDelta(t, 500, DistanceMeters(origin, p), 1e-6)
	}
}

func TestWithinBoundary(t *testing.T) {
	origin := *NewPoint(-122.4194, 37.7749)
	const radius = 500.0
	inside := Offset(origin, radius-0.01, 90)
	outside := Offset(origin, radius+0.01, 90)

	assert.True(t, Within(origin, inside, radius))
	assert.False(t, Within(origin, outside, radius))
}

func TestEffective(t *testing.T) {
	clinic := NewPoint(1, 1)
	slot := NewPoint(2, 2)
	assert.Equal(t, slot, Effective(slot, clinic))
	assert.Equal(t, clinic, Effective(nil, clinic))
	assert.Nil(t, Effective(nil, nil))
	assert.Equal(t, 2500.0, KilometersToMeters(2.5))
}
