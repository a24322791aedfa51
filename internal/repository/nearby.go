package repository

import (
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/geo"
	"github.com/jwalitptl/shadowing-api/internal/model"
)

// NearbyRow is one open slot inside the search radius, joined with its clinic.
type NearbyRow struct {
	ClinicID       uuid.UUID
	ClinicName     string
	ClinicAddress  string
	ClinicLocation *geo.Point
	Slot           model.OpenSlot
}

// GroupNearby folds rows into clinics ordered nearest first (by their closest
// open slot), ties broken by clinic id. Slots within a clinic are ordered by
// start, then id, so identical inputs always produce identical output.
func GroupNearby(rows []NearbyRow) []*model.NearbyClinic {
	byClinic := make(map[uuid.UUID]*model.NearbyClinic)
	var clinics []*model.NearbyClinic

	for _, row := range rows {
		c, ok := byClinic[row.ClinicID]
		if !ok {
			c = &model.NearbyClinic{
				ClinicID:       row.ClinicID,
				Name:           row.ClinicName,
				Address:        row.ClinicAddress,
				Location:       row.ClinicLocation,
				DistanceMeters: row.Slot.DistanceMeters,
			}
			byClinic[row.ClinicID] = c
			clinics = append(clinics, c)
		}
		if row.Slot.DistanceMeters < c.DistanceMeters {
			c.DistanceMeters = row.Slot.DistanceMeters
		}
		c.OpenSlots = append(c.OpenSlots, row.Slot)
	}

	for _, c := range clinics {
		sort.Slice(c.OpenSlots, func(i, j int) bool {
			a, b := c.OpenSlots[i], c.OpenSlots[j]
			if !a.Start.Equal(b.Start) {
				return a.Start.Before(b.Start)
			}
			return a.SlotID.String() < b.SlotID.String()
		})
	}

	sort.SliceStable(clinics, func(i, j int) bool {
		if clinics[i].DistanceMeters != clinics[j].DistanceMeters {
			return clinics[i].DistanceMeters < clinics[j].DistanceMeters
		}
		return clinics[i].ClinicID.String() < clinics[j].ClinicID.String()
	})

	return clinics
}
