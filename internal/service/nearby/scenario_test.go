package nearby_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/shadowing-api/internal/geo"
	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository/memory"
	"github.com/jwalitptl/shadowing-api/internal/service/booking"
	"github.com/jwalitptl/shadowing-api/internal/service/clinic"
	"github.com/jwalitptl/shadowing-api/internal/service/nearby"
	"github.com/jwalitptl/shadowing-api/internal/service/servicetest"
	"github.com/jwalitptl/shadowing-api/internal/service/slot"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

// A doctor publishes a slot, a student finds and books it, a second student
// loses, the doctor completes it and can no longer cancel it.
func TestShadowingDay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	events := &servicetest.Recorder{}
	m := metrics.New("test")
	log := zerolog.Nop()

	clinics := clinic.NewService(store.Clinics(), log)
	slots := slot.NewService(clinics, store.Slots(), events, m, log, slot.Config{AllowPast: true})
	bookings := booking.NewService(store.Slots(), store.Bookings(), events, m, log)
	finder := nearby.NewService(store.Slots(), m, log, nearby.Config{})

	doctor := model.Identity{UserID: uuid.New(), Role: model.RoleDoctor}
	c, err := clinics.CreateClinic(ctx, doctor, model.CreateClinicRequest{
		Name:     "Mission Clinic",
		Address:  "1 Market St",
		Location: &model.LocationInput{Coordinates: [2]float64{-122.4194, 37.7749}},
	})
	require.NoError(t, err)
	s, err := slots.CreateSlot(ctx, doctor, c.ID, model.CreateSlotRequest{Start: "2025-12-01T10:00:00Z"})
	require.NoError(t, err)

	found, err := finder.Nearby(ctx, model.NearbyQuery{Point: *geo.NewPoint(-122.4195, 37.7750), RadiusMeters: 500})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, c.ID, found[0].ClinicID)
	require.Len(t, found[0].OpenSlots, 1)
	assert.Equal(t, s.ID, found[0].OpenSlots[0].SlotID)

	studentA, studentB := uuid.New(), uuid.New()
	res, err := bookings.Book(ctx, booking.BookRequest{ClinicID: c.ID, Selector: model.SelectByID(s.ID), StudentID: studentA})
	require.NoError(t, err)
	assert.True(t, res.Slot.BookedBy(studentA))

	_, err = bookings.Book(ctx, booking.BookRequest{ClinicID: c.ID, Selector: model.SelectByID(s.ID), StudentID: studentB})
	assert.True(t, errors.IsCode(err, errors.ErrSlotUnavailable))

	found, err = finder.Nearby(ctx, model.NearbyQuery{Point: *geo.NewPoint(-122.4195, 37.7750), RadiusMeters: 500})
	require.NoError(t, err)
	assert.Empty(t, found)

	done, err := slots.CompleteSlot(ctx, doctor, c.ID, model.SelectByID(s.ID))
	require.NoError(t, err)
	assert.Equal(t, model.SlotStateCompleted, done.State())

	_, err = slots.CancelSlot(ctx, doctor, c.ID, model.SelectByID(s.ID))
	assert.True(t, errors.IsCode(err, errors.ErrPreconditionFailed))

	mine, err := bookings.ListMine(ctx, studentA)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, model.SlotStateCompleted, mine[0].Slot.State())
}
