package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/shadowing-api/internal/geo"
	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository/memory"
	"github.com/jwalitptl/shadowing-api/internal/service/event"
	"github.com/jwalitptl/shadowing-api/internal/service/servicetest"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

var slotStart = time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	bookings *servicetest.FlakyBookings
	events   *servicetest.Recorder
	metrics  *metrics.Metrics
	svc      *Service
	clinicID uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	bookings := servicetest.NewFlakyBookings(store.Bookings())
	events := &servicetest.Recorder{}
	m := metrics.New("test")

	c := &model.Clinic{DoctorID: uuid.New(), Name: "Mission Clinic", Address: "1 Market St", Location: geo.NewPoint(-122.4194, 37.7749)}
	require.NoError(t, store.Clinics().Create(context.Background(), c))

	return &fixture{
		store:    store,
		bookings: bookings,
		events:   events,
		metrics:  m,
		svc:      NewService(store.Slots(), bookings, events, m, zerolog.Nop()),
		clinicID: c.ID,
	}
}

func (f *fixture) slot(t *testing.T) *model.Slot {
	t.Helper()
	s := &model.Slot{ClinicID: f.clinicID, Start: slotStart}
	require.NoError(t, f.store.Slots().Create(context.Background(), s))
	return s
}

func (f *fixture) request(slot *model.Slot, student uuid.UUID) BookRequest {
	return BookRequest{ClinicID: f.clinicID, Selector: model.SelectByID(slot.ID), StudentID: student}
}

func TestBookSucceedsAndMirrors(t *testing.T) {
	f := setup(t)
	slot := f.slot(t)
	student := uuid.New()

	res, err := f.svc.Book(context.Background(), f.request(slot, student))
	require.NoError(t, err)
	assert.True(t, res.Booked)
	assert.False(t, res.AlreadyHeld)
	assert.True(t, res.Slot.BookedBy(student))

	mirror, err := f.store.Bookings().ListByStudent(context.Background(), student)
	require.NoError(t, err)
	require.Len(t, mirror, 1)
	assert.Equal(t, slot.ID, mirror[0].SlotID)
	assert.Equal(t, []event.Type{event.SlotBooked}, f.events.Types())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Reservations.WithLabelValues(metrics.OutcomeOK)))
}

func TestBookAtMostOnceUnderContention(t *testing.T) {
	f := setup(t)
	slot := f.slot(t)

	const students = 50
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins        int
		unavailable int
	)
	start := make(chan struct{})
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Book(context.Background(), f.request(slot, uuid.New()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.IsCode(err, errors.ErrSlotUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, students-1, unavailable)
	assert.Len(t, f.events.Events(), 1)
}

func TestRebookBySameStudentIsIdempotent(t *testing.T) {
	f := setup(t)
	slot := f.slot(t)
	student := uuid.New()

	_, err := f.svc.Book(context.Background(), f.request(slot, student))
	require.NoError(t, err)

	res, err := f.svc.Book(context.Background(), f.request(slot, student))
	require.NoError(t, err)
	assert.True(t, res.Booked)
	assert.True(t, res.AlreadyHeld)
	assert.True(t, res.Slot.BookedBy(student))
	assert.Len(t, f.events.Events(), 1, "a repeat does not emit a second booking event")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Reservations.WithLabelValues(metrics.OutcomeAlreadyHeld)))
}

func TestRebookAfterCompletionIsUnavailable(t *testing.T) {
	f := setup(t)
	slot := f.slot(t)
	student := uuid.New()

	_, err := f.svc.Book(context.Background(), f.request(slot, student))
	require.NoError(t, err)
	_, err = f.store.Slots().Complete(context.Background(), f.clinicID, model.SelectByID(slot.ID))
	require.NoError(t, err)

	_, err = f.svc.Book(context.Background(), f.request(slot, student))
	assert.True(t, errors.IsCode(err, errors.ErrSlotUnavailable))
}

func TestBookMissingSlot(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Book(context.Background(), BookRequest{ClinicID: f.clinicID, Selector: model.SelectByID(uuid.New()), StudentID: uuid.New()})
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	_, err = f.svc.Book(context.Background(), BookRequest{ClinicID: f.clinicID, Selector: model.SelectByStart(slotStart), StudentID: uuid.New()})
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	slot := f.slot(t)
	_, err = f.svc.Book(context.Background(), BookRequest{ClinicID: uuid.New(), Selector: model.SelectByID(slot.ID), StudentID: uuid.New()})
	assert.True(t, errors.IsCode(err, errors.ErrNotFound), "a slot is addressed through its own clinic only")
}

func TestBookValidation(t *testing.T) {
	f := setup(t)
	slot := f.slot(t)

	tests := []BookRequest{
		{Selector: model.SelectByID(slot.ID), StudentID: uuid.New()},
		{ClinicID: f.clinicID, Selector: model.SelectByID(slot.ID)},
		{ClinicID: f.clinicID, StudentID: uuid.New()},
	}
	for _, req := range tests {
		_, err := f.svc.Book(context.Background(), req)
		assert.True(t, errors.IsCode(err, errors.ErrValidation), "got %v", err)
	}
}

func TestBookByStartSelector(t *testing.T) {
	f := setup(t)
	first := f.slot(t)
	second := f.slot(t)
	a, b := uuid.New(), uuid.New()

	sel := model.SelectByStart(slotStart)
	resA, err := f.svc.Book(context.Background(), BookRequest{ClinicID: f.clinicID, Selector: sel, StudentID: a})
	require.NoError(t, err)
	assert.Equal(t, first.ID, resA.Slot.ID)

	resB, err := f.svc.Book(context.Background(), BookRequest{ClinicID: f.clinicID, Selector: sel, StudentID: b})
	require.NoError(t, err)
	assert.Equal(t, second.ID, resB.Slot.ID)

	again, err := f.svc.Book(context.Background(), BookRequest{ClinicID: f.clinicID, Selector: sel, StudentID: b})
	require.NoError(t, err)
	assert.True(t, again.AlreadyHeld)
	assert.Equal(t, second.ID, again.Slot.ID)

	_, err = f.svc.Book(context.Background(), BookRequest{ClinicID: f.clinicID, Selector: sel, StudentID: uuid.New()})
	assert.True(t, errors.IsCode(err, errors.ErrSlotUnavailable))
}

func TestRebookByStartIsNoOpWhileAnotherSlotIsOpen(t *testing.T) {
	f := setup(t)
	first := f.slot(t)
	second := f.slot(t)
	student := uuid.New()
	req := BookRequest{ClinicID: f.clinicID, Selector: model.SelectByStart(slotStart), StudentID: student}

	res, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, res.Slot.ID)

	again, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.AlreadyHeld)
	assert.Equal(t, first.ID, again.Slot.ID)

	other, err := f.store.Slots().Get(context.Background(), f.clinicID, model.SelectByID(second.ID))
	require.NoError(t, err)
	assert.Equal(t, model.SlotStateOpen, other.State(), "the retry must not take the second slot")
	assert.Len(t, f.events.Events(), 1)

	res, err = f.svc.Book(context.Background(), BookRequest{ClinicID: f.clinicID, Selector: model.SelectByStart(slotStart), StudentID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, second.ID, res.Slot.ID)
}

func TestMirrorFailureDoesNotRollBack(t *testing.T) {
	f := setup(t)
	slot := f.slot(t)
	student := uuid.New()
	f.bookings.SetFailing(true)

	res, err := f.svc.Book(context.Background(), f.request(slot, student))
	require.NoError(t, err)
	assert.True(t, res.Booked)

	current, err := f.store.Slots().Get(context.Background(), f.clinicID, model.SelectByID(slot.ID))
	require.NoError(t, err)
	assert.True(t, current.BookedBy(student), "the slot stays booked")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MirrorFailures.WithLabelValues("add")))

	_, err = f.svc.Book(context.Background(), f.request(slot, uuid.New()))
	assert.True(t, errors.IsCode(err, errors.ErrSlotUnavailable))

	f.bookings.SetFailing(false)
	report, err := f.svc.Reconcile(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MissingAdded)

	mine, err := f.svc.ListMine(context.Background(), student)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, slot.ID, mine[0].Slot.ID)
}

func TestStorageUnavailable(t *testing.T) {
	f := setup(t)
	svc := NewService(servicetest.DownSlots{}, f.bookings, f.events, f.metrics, zerolog.Nop())

	_, err := svc.Book(context.Background(), BookRequest{ClinicID: f.clinicID, Selector: model.SelectByID(uuid.New()), StudentID: uuid.New()})
	require.True(t, errors.IsCode(err, errors.ErrStorageUnavailable))
	appErr, _ := errors.As(err)
	assert.True(t, appErr.Retryable())
}

func TestRelease(t *testing.T) {
	f := setup(t)
	slot := f.slot(t)
	holder, other := uuid.New(), uuid.New()

	_, err := f.svc.Book(context.Background(), f.request(slot, holder))
	require.NoError(t, err)

	_, err = f.svc.Release(context.Background(), f.clinicID, slot.ID, other)
	assert.True(t, errors.IsCode(err, errors.ErrPreconditionFailed))

	released, err := f.svc.Release(context.Background(), f.clinicID, slot.ID, holder)
	require.NoError(t, err)
	assert.False(t, released.IsBooked)
	assert.Equal(t, []event.Type{event.SlotBooked, event.SlotReleased}, f.events.Types())
	assert.Equal(t, holder, *f.events.Events()[1].StudentID)

	mine, err := f.svc.ListMine(context.Background(), holder)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = f.svc.Book(context.Background(), f.request(slot, other))
	require.NoError(t, err, "a released slot can be booked again")

	_, err = f.svc.Release(context.Background(), f.clinicID, uuid.New(), holder)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestReleaseCompletedFails(t *testing.T) {
	f := setup(t)
	slot := f.slot(t)
	holder := uuid.New()

	_, err := f.svc.Book(context.Background(), f.request(slot, holder))
	require.NoError(t, err)
	_, err = f.store.Slots().Complete(context.Background(), f.clinicID, model.SelectByID(slot.ID))
	require.NoError(t, err)

	_, err = f.svc.Release(context.Background(), f.clinicID, slot.ID, holder)
	require.True(t, errors.IsCode(err, errors.ErrPreconditionFailed))
	assert.Contains(t, err.Error(), "completed")
}

func TestListMineDropsStaleEntries(t *testing.T) {
	f := setup(t)
	kept := f.slot(t)
	gone := f.slot(t)
	student := uuid.New()

	for _, s := range []*model.Slot{kept, gone} {
		_, err := f.svc.Book(context.Background(), f.request(s, student))
		require.NoError(t, err)
	}
	// Released behind the service's back, so the mirror still lists it.
	_, err := f.store.Slots().Release(context.Background(), f.clinicID, gone.ID, student)
	require.NoError(t, err)

	mine, err := f.svc.ListMine(context.Background(), student)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, kept.ID, mine[0].Slot.ID)
	assert.Equal(t, f.clinicID, mine[0].ClinicID)

	mirror, err := f.store.Bookings().ListByStudent(context.Background(), student)
	require.NoError(t, err)
	assert.Len(t, mirror, 1, "the stale entry was removed")
}

func TestReconcile(t *testing.T) {
	f := setup(t)
	student := uuid.New()
	unmirrored := f.slot(t)

	_, err := f.store.Slots().Reserve(context.Background(), f.clinicID, model.SelectByID(unmirrored.ID), student)
	require.NoError(t, err)
	require.NoError(t, f.store.Bookings().Add(context.Background(), &model.StudentBooking{
		StudentID: student, ClinicID: f.clinicID, SlotID: uuid.New(), SlotStart: slotStart,
	}))

	report, err := f.svc.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileReport{StaleRemoved: 1, MissingAdded: 1}, report)

	report, err = f.svc.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileReport{}, report)

	f.bookings.SetFailing(true)
	require.NoError(t, f.store.Bookings().Remove(context.Background(), student, unmirrored.ID))
	report, err = f.svc.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedRepairs)
}
