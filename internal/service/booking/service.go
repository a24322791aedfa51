package booking

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
	"github.com/jwalitptl/shadowing-api/internal/service"
	"github.com/jwalitptl/shadowing-api/internal/service/event"
	"github.com/jwalitptl/shadowing-api/internal/service/slot"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

const reconcileWorkers = 4

var tracer = otel.Tracer("github.com/jwalitptl/shadowing-api/internal/service/booking")

type BookRequest struct {
	ClinicID  uuid.UUID
	Selector  model.SlotSelector
	StudentID uuid.UUID
}

// BookResult is returned for a new reservation and for a repeated request by
// the student who already holds the slot (AlreadyHeld).
type BookResult struct {
	Slot        *model.Slot `json:"slot"`
	Booked      bool        `json:"booked"`
	AlreadyHeld bool        `json:"alreadyHeld"`
}

type BookingServicer interface {
	Book(ctx context.Context, req BookRequest) (*BookResult, error)
	Release(ctx context.Context, clinicID, slotID, studentID uuid.UUID) (*model.Slot, error)
	ListMine(ctx context.Context, studentID uuid.UUID) ([]model.BookingView, error)
	Reconcile(ctx context.Context, batch int) (model.ReconcileReport, error)
}

type Service struct {
	slots    repository.SlotRepository
	bookings repository.StudentBookingRepository
	events   event.Publisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewService(
	slots repository.SlotRepository,
	bookings repository.StudentBookingRepository,
	events event.Publisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		slots:    slots,
		bookings: bookings,
		events:   events,
		metrics:  m,
		logger:   logger,
	}
}

// Book reserves a slot with one conditional write. Whoever's write lands
// first wins; everyone else gets SlotUnavailable. The student mirror and the
// event are written afterwards and never undo the reservation.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	ctx, span := tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("clinic.id", req.ClinicID.String()),
		attribute.String("slot.selector", req.Selector.String()),
	))
	defer span.End()

	result, err := s.book(ctx, req)
	outcome := slot.Outcome(err)
	if result != nil && result.AlreadyHeld {
		outcome = metrics.OutcomeAlreadyHeld
	}
	s.metrics.Reservations.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("booking.outcome", outcome))
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (*BookResult, error) {
	if req.ClinicID == uuid.Nil {
		return nil, errors.Validation("clinicId is required", nil)
	}
	if req.StudentID == uuid.Nil {
		return nil, errors.Validation("student identity is required", nil)
	}
	if err := req.Selector.Validate(); err != nil {
		return nil, errors.Validation(err.Error(), nil)
	}

	reserved, err := s.slots.Reserve(ctx, req.ClinicID, req.Selector, req.StudentID)
	if err == nil {
		s.logger.Info().
			Str("clinic_id", req.ClinicID.String()).
			Str("slot_id", reserved.ID.String()).
			Str("student_id", req.StudentID.String()).
			Msg("slot booked")
		s.mirrorAdd(ctx, reserved)
		s.events.Publish(ctx, event.SlotBooked, reserved)
		return &BookResult{Slot: reserved, Booked: true}, nil
	}
	if !stderrors.Is(err, repository.ErrConflict) {
		return nil, service.StoreError("slot", err)
	}

	// Lost the conditional write. A read now only decides what to report.
	held, err := s.heldBy(ctx, req)
	if err != nil {
		return nil, err
	}
	if held != nil {
		s.mirrorAdd(ctx, held)
		return &BookResult{Slot: held, Booked: true, AlreadyHeld: true}, nil
	}
	return nil, errors.SlotUnavailable(nil)
}

// heldBy returns the addressed slot when the requesting student already
// holds it and it is not completed. It returns NotFound when nothing is
// addressed at all.
func (s *Service) heldBy(ctx context.Context, req BookRequest) (*model.Slot, error) {
	if req.Selector.ByID() {
		current, err := s.slots.Get(ctx, req.ClinicID, req.Selector)
		if err != nil {
			return nil, service.StoreError("slot", err)
		}
		if current.BookedBy(req.StudentID) && !current.IsCompleted {
			return current, nil
		}
		return nil, nil
	}

	// Start timestamps are not unique, so look at every slot sharing it.
	all, err := s.slots.ListByClinic(ctx, req.ClinicID)
	if err != nil {
		return nil, service.StoreError("slot", err)
	}
	found := false
	for _, candidate := range all {
		if !req.Selector.Matches(candidate) {
			continue
		}
		found = true
		if candidate.BookedBy(req.StudentID) && !candidate.IsCompleted {
			return candidate, nil
		}
	}
	if !found {
		return nil, errors.NotFound("slot", nil)
	}
	return nil, nil
}

// Release hands a booked slot back to the open pool. Only the student
// holding it may do so, and only before it is completed.
func (s *Service) Release(ctx context.Context, clinicID, slotID, studentID uuid.UUID) (*model.Slot, error) {
	released, err := s.release(ctx, clinicID, slotID, studentID)
	s.metrics.Transitions.WithLabelValues(string(model.TransitionRelease), slot.Outcome(err)).Inc()
	return released, err
}

func (s *Service) release(ctx context.Context, clinicID, slotID, studentID uuid.UUID) (*model.Slot, error) {
	if clinicID == uuid.Nil || slotID == uuid.Nil {
		return nil, errors.Validation("clinicId and slotId are required", nil)
	}

	released, err := s.slots.Release(ctx, clinicID, slotID, studentID)
	if err == nil {
		s.logger.Info().
			Str("clinic_id", clinicID.String()).
			Str("slot_id", slotID.String()).
			Str("student_id", studentID.String()).
			Msg("booking released")
		s.mirrorRemove(ctx, studentID, slotID)
		evt := released.Clone()
		evt.BookedByStudentID = &studentID
		s.events.Publish(ctx, event.SlotReleased, evt)
		return released, nil
	}
	if !stderrors.Is(err, repository.ErrConflict) {
		return nil, service.StoreError("slot", err)
	}

	current, getErr := s.slots.Get(ctx, clinicID, model.SelectByID(slotID))
	if getErr != nil {
		return nil, service.StoreError("slot", getErr)
	}
	if !current.BookedBy(studentID) {
		// Whatever the mirror says, this student does not hold the slot.
		s.mirrorRemove(ctx, studentID, slotID)
		return nil, errors.PreconditionFailed("slot is not booked by you", err)
	}
	return nil, errors.PreconditionFailed(slot.Rejection(model.TransitionRelease, current.State()), err)
}

// ListMine returns the student's reservations. The mirror only says where to
// look: each entry is checked against its slot, and entries the slot no
// longer backs are dropped from the answer and removed.
func (s *Service) ListMine(ctx context.Context, studentID uuid.UUID) ([]model.BookingView, error) {
	entries, err := s.bookings.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, service.StoreError("booking", err)
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.SlotID)
	}
	slots, err := s.slots.ListByIDs(ctx, ids)
	if err != nil {
		return nil, service.StoreError("slot", err)
	}
	byID := make(map[uuid.UUID]*model.Slot, len(slots))
	for _, sl := range slots {
		byID[sl.ID] = sl
	}

	views := make([]model.BookingView, 0, len(entries))
	for _, e := range entries {
		sl, ok := byID[e.SlotID]
		if !ok || !sl.BookedBy(studentID) {
			s.mirrorRemove(ctx, studentID, e.SlotID)
			continue
		}
		views = append(views, model.BookingView{ClinicID: sl.ClinicID, Slot: sl})
	}
	return views, nil
}

// Reconcile repairs up to batch stale and batch missing mirror rows. A row
// that becomes valid again between the scan and the repair is restored on
// the next pass.
func (s *Service) Reconcile(ctx context.Context, batch int) (model.ReconcileReport, error) {
	var report model.ReconcileReport

	stale, err := s.bookings.ListStale(ctx, batch)
	if err != nil {
		return report, service.StoreError("booking", err)
	}
	missing, err := s.bookings.ListMissing(ctx, batch)
	if err != nil {
		return report, service.StoreError("booking", err)
	}

	var removed, added, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(reconcileWorkers)
	for _, b := range stale {
		p.Go(func() {
			if err := s.bookings.Remove(ctx, b.StudentID, b.SlotID); err != nil {
				failed.Add(1)
				s.logger.Warn().Err(err).Str("slot_id", b.SlotID.String()).Msg("failed to remove stale booking mirror")
				return
			}
			removed.Add(1)
		})
	}
	for _, b := range missing {
		p.Go(func() {
			if err := s.bookings.Add(ctx, b); err != nil {
				failed.Add(1)
				s.logger.Warn().Err(err).Str("slot_id", b.SlotID.String()).Msg("failed to restore booking mirror")
				return
			}
			added.Add(1)
		})
	}
	p.Wait()

	report.StaleRemoved = int(removed.Load())
	report.MissingAdded = int(added.Load())
	report.FailedRepairs = int(failed.Load())

	s.metrics.ReconcileFixes.WithLabelValues("stale").Add(float64(report.StaleRemoved))
	s.metrics.ReconcileFixes.WithLabelValues("missing").Add(float64(report.MissingAdded))
	s.metrics.ReconcileFixes.WithLabelValues("failed").Add(float64(report.FailedRepairs))
	return report, nil
}

func (s *Service) mirrorAdd(ctx context.Context, sl *model.Slot) {
	err := s.bookings.Add(ctx, &model.StudentBooking{
		StudentID: *sl.BookedByStudentID,
		ClinicID:  sl.ClinicID,
		SlotID:    sl.ID,
		SlotStart: sl.Start,
	})
	if err != nil {
		s.metrics.MirrorFailures.WithLabelValues("add").Inc()
		s.logger.Warn().Err(err).
			Str("slot_id", sl.ID.String()).
			Msg("booking stands but student mirror write failed")
	}
}

func (s *Service) mirrorRemove(ctx context.Context, studentID, slotID uuid.UUID) {
	if err := s.bookings.Remove(ctx, studentID, slotID); err != nil {
		s.metrics.MirrorFailures.WithLabelValues("remove").Inc()
		s.logger.Warn().Err(err).
			Str("slot_id", slotID.String()).
			Msg("failed to remove student mirror entry")
	}
}
