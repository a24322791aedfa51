package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/model"
)

var (
	// ErrNotFound is returned when the addressed clinic or slot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write matched zero rows. On its
	// own it does not say whether the row is missing or its precondition failed.
	ErrConflict = errors.New("conditional update matched no rows")
	// ErrUnavailable marks transient storage faults that are safe to retry.
	ErrUnavailable = errors.New("storage unavailable")
)

// All repository interfaces in one file
type (
	ClinicRepository interface {
		Create(ctx context.Context, clinic *model.Clinic) error
		Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error)
		ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Clinic, error)
	}

	// SlotRepository is the slot store. Every mutation is a single conditional
	// statement; callers never read-modify-write a slot.
	SlotRepository interface {
		Create(ctx context.Context, slot *model.Slot) error
		Get(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error)
		ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*model.Slot, error)
		ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Slot, error)
		Reserve(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector, studentID uuid.UUID) (*model.Slot, error)
		Release(ctx context.Context, clinicID, slotID, studentID uuid.UUID) (*model.Slot, error)
		Delete(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error)
		Complete(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error)
		ListOpenNear(ctx context.Context, q model.NearbyQuery) ([]*model.NearbyClinic, error)
	}

	StudentBookingRepository interface {
		Add(ctx context.Context, booking *model.StudentBooking) error
		Remove(ctx context.Context, studentID, slotID uuid.UUID) error
		ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.StudentBooking, error)
		ListStale(ctx context.Context, limit int) ([]*model.StudentBooking, error)
		ListMissing(ctx context.Context, limit int) ([]*model.StudentBooking, error)
	}

	// Pinger is implemented by stores that can report readiness.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Store hands out the repositories backed by one storage engine.
	Store interface {
		Pinger
		Clinics() ClinicRepository
		Slots() SlotRepository
		Bookings() StudentBookingRepository
	}
)
