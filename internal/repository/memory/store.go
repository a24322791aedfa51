// Package memory is an in-process storage engine implementing the repository
// interfaces. Each conditional operation runs under the store mutex, which
// gives it the same single-document atomicity the database provides. It backs
// tests and the "memory" storage driver used for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/geo"
	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	clinics  map[uuid.UUID]*model.Clinic
	slots    map[uuid.UUID]*model.Slot
	seq      map[uuid.UUID]int64
	next     int64
	bookings map[bookingKey]*model.StudentBooking
	now      func() time.Time
}

type bookingKey struct {
	studentID uuid.UUID
	slotID    uuid.UUID
}

func NewStore() *Store {
	return &Store{
		clinics:  make(map[uuid.UUID]*model.Clinic),
		slots:    make(map[uuid.UUID]*model.Slot),
		seq:      make(map[uuid.UUID]int64),
		bookings: make(map[bookingKey]*model.StudentBooking),
		now:      time.Now,
	}
}

func (s *Store) Clinics() repository.ClinicRepository { return &clinicRepository{s} }

func (s *Store) Slots() repository.SlotRepository { return &slotRepository{s} }

func (s *Store) Bookings() repository.StudentBookingRepository { return &bookingRepository{s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type clinicRepository struct{ s *Store }

func (r *clinicRepository) Create(ctx context.Context, clinic *model.Clinic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if clinic.ID == uuid.Nil {
		clinic.ID = uuid.New()
	}
	now := r.s.now().UTC()
	clinic.CreatedAt = now
	clinic.UpdatedAt = now

	r.s.clinics[clinic.ID] = clinic.Clone()
	return nil
}

func (r *clinicRepository) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.clinics[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *clinicRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Clinic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Clinic
	for _, c := range r.s.clinics {
		if c.DoctorID == doctorID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

type slotRepository struct{ s *Store }

func (r *slotRepository) Create(ctx context.Context, slot *model.Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.clinics[slot.ClinicID]; !ok {
		return repository.ErrNotFound
	}
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	now := r.s.now().UTC()
	slot.Start = model.NormalizeInstant(slot.Start)
	if slot.End != nil {
		end := model.NormalizeInstant(*slot.End)
		slot.End = &end
	}
	slot.IsBooked = false
	slot.BookedByStudentID = nil
	slot.IsCompleted = false
	slot.CreatedAt = now
	slot.UpdatedAt = now

	r.s.next++
	r.s.seq[slot.ID] = r.s.next
	r.s.slots[slot.ID] = slot.Clone()
	return nil
}

func (r *slotRepository) Get(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot := r.s.find(clinicID, sel, func(*model.Slot) bool { return true })
	if slot == nil {
		return nil, repository.ErrNotFound
	}
	return slot.Clone(), nil
}

func (r *slotRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Slot
	for _, slot := range r.s.slots {
		if slot.ClinicID == clinicID {
			out = append(out, slot.Clone())
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *slotRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Slot
	for _, id := range ids {
		if slot, ok := r.s.slots[id]; ok {
			out = append(out, slot.Clone())
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *slotRepository) Reserve(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector, studentID uuid.UUID) (*model.Slot, error) {
	return r.s.apply(ctx, clinicID, sel, func(slot *model.Slot) bool {
		if !model.CanApply(model.TransitionReserve, slot.State()) {
			return false
		}
		// A start selector never hands a second slot at that start to a
		// student who already holds one.
		return sel.ByID() || !r.s.holds(clinicID, sel, studentID)
	}, func(slot *model.Slot) {
		id := studentID
		slot.IsBooked = true
		slot.BookedByStudentID = &id
	})
}

func (r *slotRepository) Release(ctx context.Context, clinicID, slotID, studentID uuid.UUID) (*model.Slot, error) {
	return r.s.apply(ctx, clinicID, model.SelectByID(slotID), func(slot *model.Slot) bool {
		return model.CanApply(model.TransitionRelease, slot.State()) && slot.BookedBy(studentID)
	}, func(slot *model.Slot) {
		slot.IsBooked = false
		slot.BookedByStudentID = nil
	})
}

func (r *slotRepository) Complete(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error) {
	return r.s.apply(ctx, clinicID, sel, func(slot *model.Slot) bool {
		return model.CanApply(model.TransitionComplete, slot.State())
	}, func(slot *model.Slot) {
		slot.IsCompleted = true
	})
}

func (r *slotRepository) Delete(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot := r.s.find(clinicID, sel, func(slot *model.Slot) bool {
		return model.CanApply(model.TransitionCancel, slot.State())
	})
	if slot == nil {
		return nil, repository.ErrConflict
	}
	delete(r.s.slots, slot.ID)
	delete(r.s.seq, slot.ID)
	return slot.Clone(), nil
}

func (r *slotRepository) ListOpenNear(ctx context.Context, q model.NearbyQuery) ([]*model.NearbyClinic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []repository.NearbyRow
	for _, slot := range r.s.slots {
		if slot.IsBooked {
			continue
		}
		clinic, ok := r.s.clinics[slot.ClinicID]
		if !ok {
			continue
		}
		point := geo.Effective(slot.Location, clinic.Location)
		if point == nil {
			continue
		}
		distance := geo.DistanceMeters(q.Point, *point)
		if distance > q.RadiusMeters {
			continue
		}
		open := model.OpenSlot{
			SlotID:         slot.ID,
			Start:          slot.Start,
			Address:        slot.Address,
			DistanceMeters: distance,
		}
		if slot.End != nil {
			end := *slot.End
			open.End = &end
		}
		loc := *point
		open.Location = &loc

		var clinicLoc *geo.Point
		if clinic.Location != nil {
			cl := *clinic.Location
			clinicLoc = &cl
		}
		rows = append(rows, repository.NearbyRow{
			ClinicID:       clinic.ID,
			ClinicName:     clinic.Name,
			ClinicAddress:  clinic.Address,
			ClinicLocation: clinicLoc,
			Slot:           open,
		})
	}
	return repository.GroupNearby(rows), nil
}

// apply finds the slot addressed by sel whose state satisfies pred and
// mutates it, all under one lock acquisition.
func (s *Store) apply(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector, pred func(*model.Slot) bool, mutate func(*model.Slot)) (*model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.find(clinicID, sel, pred)
	if slot == nil {
		return nil, repository.ErrConflict
	}
	mutate(slot)
	slot.UpdatedAt = s.now().UTC()
	return slot.Clone(), nil
}

// find returns the slot of clinicID matched by sel that satisfies pred. A
// start selector resolves to the earliest-created qualifying slot.
func (s *Store) find(clinicID uuid.UUID, sel model.SlotSelector, pred func(*model.Slot) bool) *model.Slot {
	if sel.ByID() {
		slot, ok := s.slots[sel.ID]
		if !ok || slot.ClinicID != clinicID || !pred(slot) {
			return nil
		}
		return slot
	}

	var best *model.Slot
	for _, slot := range s.slots {
		if slot.ClinicID != clinicID || !sel.Matches(slot) || !pred(slot) {
			continue
		}
		if best == nil || s.seq[slot.ID] < s.seq[best.ID] {
			best = slot
		}
	}
	return best
}

// holds reports whether studentID holds an uncompleted slot of clinicID
// matched by sel. Callers hold s.mu.
func (s *Store) holds(clinicID uuid.UUID, sel model.SlotSelector, studentID uuid.UUID) bool {
	for _, slot := range s.slots {
		if slot.ClinicID == clinicID && sel.Matches(slot) && slot.BookedBy(studentID) && !slot.IsCompleted {
			return true
		}
	}
	return false
}

func sortSlots(slots []*model.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].ID.String() < slots[j].ID.String()
	})
}

type bookingRepository struct{ s *Store }

func (r *bookingRepository) Add(ctx context.Context, booking *model.StudentBooking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := bookingKey{studentID: booking.StudentID, slotID: booking.SlotID}
	if _, ok := r.s.bookings[key]; ok {
		return nil
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = r.s.now().UTC()
	}
	cp := *booking
	r.s.bookings[key] = &cp
	return nil
}

func (r *bookingRepository) Remove(ctx context.Context, studentID, slotID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.bookings, bookingKey{studentID: studentID, slotID: slotID})
	return nil
}

func (r *bookingRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.StudentBooking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.StudentBooking
	for key, b := range r.s.bookings {
		if key.studentID == studentID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sortBookings(out)
	return out, nil
}

func (r *bookingRepository) ListStale(ctx context.Context, limit int) ([]*model.StudentBooking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.StudentBooking
	for _, b := range r.s.bookings {
		slot, ok := r.s.slots[b.SlotID]
		if ok && slot.BookedBy(b.StudentID) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sortBookings(out)
	return truncate(out, limit), nil
}

func (r *bookingRepository) ListMissing(ctx context.Context, limit int) ([]*model.StudentBooking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.StudentBooking
	for _, slot := range r.s.slots {
		if !slot.IsBooked || slot.BookedByStudentID == nil {
			continue
		}
		key := bookingKey{studentID: *slot.BookedByStudentID, slotID: slot.ID}
		if _, ok := r.s.bookings[key]; ok {
			continue
		}
		out = append(out, &model.StudentBooking{
			StudentID: *slot.BookedByStudentID,
			ClinicID:  slot.ClinicID,
			SlotID:    slot.ID,
			SlotStart: slot.Start,
		})
	}
	sortBookings(out)
	return truncate(out, limit), nil
}

func sortBookings(b []*model.StudentBooking) {
	sort.Slice(b, func(i, j int) bool {
		if !b[i].SlotStart.Equal(b[j].SlotStart) {
			return b[i].SlotStart.Before(b[j].SlotStart)
		}
		return b[i].SlotID.String() < b[j].SlotID.String()
	})
}

func truncate(b []*model.StudentBooking, limit int) []*model.StudentBooking {
	if limit > 0 && len(b) > limit {
		return b[:limit]
	}
	return b
}
