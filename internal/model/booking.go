package model

import (
	"time"

	"github.com/google/uuid"
)

// StudentBooking is the student-owned mirror of a reservation. The slot row is
// authoritative; this record only speeds up "my bookings" and may lag.
type StudentBooking struct {
	StudentID uuid.UUID `json:"studentId" db:"student_id"`
	ClinicID  uuid.UUID `json:"clinicId" db:"clinic_id"`
	SlotID    uuid.UUID `json:"slotId" db:"slot_id"`
	SlotStart time.Time `json:"slotStart" db:"slot_start"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type BookSlotRequest struct {
	ClinicID string `json:"clinicId" binding:"required,uuid"`
	SlotSelectorRequest
}

// BookingView is a reconciled reservation returned to its student.
type BookingView struct {
	ClinicID uuid.UUID `json:"clinicId"`
	Slot     *Slot     `json:"slot"`
}

// ReconcileReport summarises one mirror reconciliation pass.
type ReconcileReport struct {
	StaleRemoved  int `json:"staleRemoved"`
	MissingAdded  int `json:"missingAdded"`
	FailedRepairs int `json:"failedRepairs"`
}
