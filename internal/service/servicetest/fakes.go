// Package servicetest provides doubles shared by the service and handler tests.
package servicetest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
	"github.com/jwalitptl/shadowing-api/internal/service/event"
)

// ErrMirrorDown is what FlakyBookings returns while failing.
var ErrMirrorDown = errors.New("mirror store unavailable")

// Recorder is an event.Publisher that keeps everything it is given.
type Recorder struct {
	mu     sync.Mutex
	events []event.SlotEvent
}

func (r *Recorder) Publish(_ context.Context, typ event.Type, slot *model.Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.NewSlotEvent(typ, slot, slot.UpdatedAt))
}

func (r *Recorder) Events() []event.SlotEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.SlotEvent(nil), r.events...)
}

func (r *Recorder) Types() []event.Type {
	var out []event.Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}

// FlakyBookings wraps a mirror repository and fails writes while Fail is set.
type FlakyBookings struct {
	repository.StudentBookingRepository

	mu   sync.Mutex
	fail bool
}

func NewFlakyBookings(inner repository.StudentBookingRepository) *FlakyBookings {
	return &FlakyBookings{StudentBookingRepository: inner}
}

func (f *FlakyBookings) SetFailing(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *FlakyBookings) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func (f *FlakyBookings) Add(ctx context.Context, b *model.StudentBooking) error {
	if f.failing() {
		return ErrMirrorDown
	}
	return f.StudentBookingRepository.Add(ctx, b)
}

func (f *FlakyBookings) Remove(ctx context.Context, studentID, slotID uuid.UUID) error {
	if f.failing() {
		return ErrMirrorDown
	}
	return f.StudentBookingRepository.Remove(ctx, studentID, slotID)
}

// DownSlots is a slot repository whose every call reports ErrUnavailable.
type DownSlots struct {
	repository.SlotRepository
}

func (DownSlots) Reserve(context.Context, uuid.UUID, model.SlotSelector, uuid.UUID) (*model.Slot, error) {
	return nil, repository.ErrUnavailable
}

func (DownSlots) ListOpenNear(context.Context, model.NearbyQuery) ([]*model.NearbyClinic, error) {
	return nil, repository.ErrUnavailable
}
