package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/geo"
)

// NearbyQuery is always expressed in meters around a [lng, lat] point.
type NearbyQuery struct {
	Point        geo.Point
	RadiusMeters float64
}

// NearbyRequest is the query-string form of a nearby search.
type NearbyRequest struct {
	Lat      *float64 `form:"lat" binding:"required,latitude"`
	Lng      *float64 `form:"lng" binding:"required,longitude"`
	Radius   *float64 `form:"radius" binding:"omitempty,gt=0"`
	RadiusKm *float64 `form:"radiusKm" binding:"omitempty,gt=0"`
}

// OpenSlot is the public view of an unbooked slot. It carries no booking data.
type OpenSlot struct {
	SlotID         uuid.UUID  `json:"slotId"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"`
	Address        string     `json:"address,omitempty"`
	Location       *geo.Point `json:"location,omitempty"`
	DistanceMeters float64    `json:"distanceMeters"`
}

// NearbyClinic is a clinic with at least one open slot inside the radius.
type NearbyClinic struct {
	ClinicID       uuid.UUID  `json:"clinicId"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	Location       *geo.Point `json:"location,omitempty"`
	DistanceMeters float64    `json:"distanceMeters"`
	OpenSlots      []OpenSlot `json:"openSlots"`
}
