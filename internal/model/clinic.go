package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/geo"
)

// Clinic is a physician-owned location that groups shadowing slots.
type Clinic struct {
	ID        uuid.UUID  `json:"clinicId"`
	DoctorID  uuid.UUID  `json:"doctorId"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Location  *geo.Point `json:"location,omitempty"`
	Slots     []*Slot    `json:"slots,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Clone returns a copy that shares no pointers with c. Slots are not copied.
func (c *Clinic) Clone() *Clinic {
	out := *c
	out.Slots = nil
	if c.Location != nil {
		loc := *c.Location
		out.Location = &loc
	}
	return &out
}

type CreateClinicRequest struct {
	Name     string         `json:"name" binding:"required,max=200"`
	Address  string         `json:"address" binding:"required,max=500"`
	Location *LocationInput `json:"location" binding:"omitempty"`
}

// LocationInput is the wire form of a point: {"coordinates": [lng, lat]}.
type LocationInput struct {
	Type        string     `json:"type" binding:"omitempty,eq=Point"`
	Coordinates [2]float64 `json:"coordinates" binding:"lnglat"`
}

func (l *LocationInput) Point() *geo.Point {
	if l == nil {
		return nil
	}
	return geo.NewPoint(l.Coordinates[0], l.Coordinates[1])
}
