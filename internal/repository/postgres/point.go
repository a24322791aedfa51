package postgres

import (
	"database/sql"

	"github.com/jwalitptl/shadowing-api/internal/geo"
)

// makePoint builds a nullable geography from two float8 placeholders.
// ST_MakePoint is strict, so NULL coordinates yield a NULL location.
func makePoint(lngArg, latArg string) string {
	return "ST_SetSRID(ST_MakePoint(" + lngArg + "::float8, " + latArg + "::float8), 4326)::geography"
}

func pointArgs(p *geo.Point) (lng, lat sql.NullFloat64) {
	if p == nil {
		return lng, lat
	}
	return sql.NullFloat64{Float64: p.Lng(), Valid: true}, sql.NullFloat64{Float64: p.Lat(), Valid: true}
}

func scanPoint(lng, lat sql.NullFloat64) *geo.Point {
	if !lng.Valid || !lat.Valid {
		return nil
	}
	return geo.NewPoint(lng.Float64, lat.Float64)
}
