package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
)

// The two ST_DWithin branches keep both GIST indexes usable; a COALESCE of
// the locations would force a sequential scan. use_spheroid=false matches the
// sphere used by the in-memory store.
const nearbyQuery = `
	WITH origin AS (
		SELECT ST_SetSRID(ST_MakePoint($1::float8, $2::float8), 4326)::geography AS p
	)
	SELECT
		c.id AS clinic_id,
		c.name AS clinic_name,
		c.address AS clinic_address,
		ST_X(c.location::geometry) AS clinic_lng,
		ST_Y(c.location::geometry) AS clinic_lat,
		s.id AS slot_id,
		s.start_at,
		s.end_at,
		s.address AS slot_address,
		ST_X(COALESCE(s.location, c.location)::geometry) AS lng,
		ST_Y(COALESCE(s.location, c.location)::geometry) AS lat,
		ST_Distance(COALESCE(s.location, c.location), origin.p, false) AS distance_meters
	FROM slots s
	JOIN clinics c ON c.id = s.clinic_id
	CROSS JOIN origin
	WHERE s.is_booked = false
		AND (
			(s.location IS NOT NULL AND ST_DWithin(s.location, origin.p, $3, false))
			OR (s.location IS NULL AND ST_DWithin(c.location, origin.p, $3, false))
		)
`

type nearbyRow struct {
	ClinicID       uuid.UUID       `db:"clinic_id"`
	ClinicName     string          `db:"clinic_name"`
	ClinicAddress  string          `db:"clinic_address"`
	ClinicLng      sql.NullFloat64 `db:"clinic_lng"`
	ClinicLat      sql.NullFloat64 `db:"clinic_lat"`
	SlotID         uuid.UUID       `db:"slot_id"`
	StartAt        time.Time       `db:"start_at"`
	EndAt          sql.NullTime    `db:"end_at"`
	SlotAddress    string          `db:"slot_address"`
	Lng            sql.NullFloat64 `db:"lng"`
	Lat            sql.NullFloat64 `db:"lat"`
	DistanceMeters float64         `db:"distance_meters"`
}

func (r *slotRepository) ListOpenNear(ctx context.Context, q model.NearbyQuery) ([]*model.NearbyClinic, error) {
	var rows []nearbyRow
	err := r.db.SelectContext(ctx, &rows, nearbyQuery, q.Point.Lng(), q.Point.Lat(), q.RadiusMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby slots: %w", classify(err))
	}

	grouped := make([]repository.NearbyRow, 0, len(rows))
	for _, row := range rows {
		open := model.OpenSlot{
			SlotID:         row.SlotID,
			Start:          row.StartAt.UTC(),
			Address:        row.SlotAddress,
			Location:       scanPoint(row.Lng, row.Lat),
			DistanceMeters: row.DistanceMeters,
		}
		if row.EndAt.Valid {
			end := row.EndAt.Time.UTC()
			open.End = &end
		}
		grouped = append(grouped, repository.NearbyRow{
			ClinicID:       row.ClinicID,
			ClinicName:     row.ClinicName,
			ClinicAddress:  row.ClinicAddress,
			ClinicLocation: scanPoint(row.ClinicLng, row.ClinicLat),
			Slot:           open,
		})
	}
	return repository.GroupNearby(grouped), nil
}
