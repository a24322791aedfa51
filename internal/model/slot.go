package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/geo"
)

// Slot is a single shadowing appointment offered at a clinic. Only the
// lifecycle fields (IsBooked, BookedByStudentID, IsCompleted) ever change.
type Slot struct {
	ID                uuid.UUID  `json:"slotId"`
	ClinicID          uuid.UUID  `json:"clinicId"`
	Start             time.Time  `json:"start"`
	End               *time.Time `json:"end,omitempty"`
	Address           string     `json:"address,omitempty"`
	Location          *geo.Point `json:"location,omitempty"`
	IsBooked          bool       `json:"isBooked"`
	BookedByStudentID *uuid.UUID `json:"bookedByStudentId"`
	IsCompleted       bool       `json:"isCompleted"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// State derives the lifecycle state from the stored flags.
func (s *Slot) State() SlotState {
	switch {
	case s.IsCompleted:
		return SlotStateCompleted
	case s.IsBooked:
		return SlotStateBooked
	default:
		return SlotStateOpen
	}
}

// BookedBy reports whether the slot is currently held by studentID.
func (s *Slot) BookedBy(studentID uuid.UUID) bool {
	return s.IsBooked && s.BookedByStudentID != nil && *s.BookedByStudentID == studentID
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (s *Slot) Clone() *Slot {
	c := *s
	if s.End != nil {
		end := *s.End
		c.End = &end
	}
	if s.Location != nil {
		loc := *s.Location
		c.Location = &loc
	}
	if s.BookedByStudentID != nil {
		id := *s.BookedByStudentID
		c.BookedByStudentID = &id
	}
	return &c
}

// SlotSelector identifies a slot within a clinic. ID is authoritative; Start is
// a compatibility shim for older clients and is matched by exact instant.
type SlotSelector struct {
	ID    uuid.UUID
	Start *time.Time
}

func SelectByID(id uuid.UUID) SlotSelector {
	return SlotSelector{ID: id}
}

func SelectByStart(start time.Time) SlotSelector {
	t := NormalizeInstant(start)
	return SlotSelector{Start: &t}
}

func (s SlotSelector) ByID() bool {
	return s.ID != uuid.Nil
}

func (s SlotSelector) Validate() error {
	if s.ID == uuid.Nil && (s.Start == nil || s.Start.IsZero()) {
		return fmt.Errorf("slotId or start is required")
	}
	return nil
}

// Matches reports whether slot is addressed by the selector.
func (s SlotSelector) Matches(slot *Slot) bool {
	if s.ByID() {
		return slot.ID == s.ID
	}
	return s.Start != nil && slot.Start.Equal(NormalizeInstant(*s.Start))
}

func (s SlotSelector) String() string {
	if s.ByID() {
		return s.ID.String()
	}
	if s.Start != nil {
		return "start=" + s.Start.Format(time.RFC3339Nano)
	}
	return "<empty>"
}

type CreateSlotRequest struct {
	Start    string         `json:"start" binding:"required"`
	End      string         `json:"end"`
	Address  string         `json:"address" binding:"max=500"`
	Location *LocationInput `json:"location" binding:"omitempty"`
}

// SlotSelectorRequest addresses a slot by id or, for older clients, by start.
type SlotSelectorRequest struct {
	SlotID string `json:"slotId" form:"slotId" binding:"omitempty,uuid"`
	Start  string `json:"start" form:"start"`
}

// Selector converts the wire form, preferring the id when both are present.
func (r SlotSelectorRequest) Selector() (SlotSelector, error) {
	if r.SlotID != "" {
		id, err := uuid.Parse(r.SlotID)
		if err != nil {
			return SlotSelector{}, fmt.Errorf("invalid slotId: %w", err)
		}
		return SelectByID(id), nil
	}
	if r.Start != "" {
		start, err := ParseInstant(r.Start)
		if err != nil {
			return SlotSelector{}, fmt.Errorf("invalid start: %w", err)
		}
		return SelectByStart(start), nil
	}
	return SlotSelector{}, fmt.Errorf("slotId or start is required")
}
