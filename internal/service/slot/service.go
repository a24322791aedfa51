package slot

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
	"github.com/jwalitptl/shadowing-api/internal/service"
	"github.com/jwalitptl/shadowing-api/internal/service/clinic"
	"github.com/jwalitptl/shadowing-api/internal/service/event"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

type Config struct {
	// AllowPast permits slots that start before now. Storage accepts any
	// start; this is a business rule applied here.
	AllowPast bool
}

type SlotServicer interface {
	CreateSlot(ctx context.Context, caller model.Identity, clinicID uuid.UUID, req model.CreateSlotRequest) (*model.Slot, error)
	CancelSlot(ctx context.Context, caller model.Identity, clinicID uuid.UUID, sel model.SlotSelector) ([]*model.Slot, error)
	CompleteSlot(ctx context.Context, caller model.Identity, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error)
	ListClinicSlots(ctx context.Context, caller model.Identity, clinicID uuid.UUID) ([]*model.Slot, error)
}

type Service struct {
	clinics *clinic.Service
	slots   repository.SlotRepository
	events  event.Publisher
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  Config
	now     func() time.Time
}

func NewService(
	clinics *clinic.Service,
	slots repository.SlotRepository,
	events event.Publisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config Config,
) *Service {
	return &Service{
		clinics: clinics,
		slots:   slots,
		events:  events,
		metrics: m,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

func (s *Service) CreateSlot(ctx context.Context, caller model.Identity, clinicID uuid.UUID, req model.CreateSlotRequest) (*model.Slot, error) {
	if _, err := s.clinics.GetClinic(ctx, caller, clinicID); err != nil {
		return nil, err
	}

	slot, err := s.buildSlot(clinicID, req)
	if err != nil {
		return nil, err
	}

	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, service.StoreError("clinic", fmt.Errorf("failed to create slot: %w", err))
	}

	s.logger.Info().
		Str("clinic_id", clinicID.String()).
		Str("slot_id", slot.ID.String()).
		Time("start", slot.Start).
		Msg("slot created")
	s.events.Publish(ctx, event.SlotCreated, slot)
	return slot, nil
}

func (s *Service) buildSlot(clinicID uuid.UUID, req model.CreateSlotRequest) (*model.Slot, error) {
	start, err := model.ParseInstant(req.Start)
	if err != nil {
		return nil, errors.Validation("start must be an RFC 3339 timestamp", err)
	}
	if !s.config.AllowPast && start.Before(s.now()) {
		return nil, errors.Validation("start must be in the future", nil)
	}

	slot := &model.Slot{
		ClinicID: clinicID,
		Start:    start,
		Address:  strings.TrimSpace(req.Address),
		Location: req.Location.Point(),
	}

	if req.End != "" {
		end, err := model.ParseInstant(req.End)
		if err != nil {
			return nil, errors.Validation("end must be an RFC 3339 timestamp", err)
		}
		if !end.After(start) {
			return nil, errors.Validation("end must be after start", nil)
		}
		slot.End = &end
	}

	if slot.Location != nil {
		if err := slot.Location.Validate(); err != nil {
			return nil, errors.Validation("invalid location", err)
		}
	}
	return slot, nil
}

// CancelSlot deletes an open slot and returns the clinic's remaining slots.
func (s *Service) CancelSlot(ctx context.Context, caller model.Identity, clinicID uuid.UUID, sel model.SlotSelector) ([]*model.Slot, error) {
	if err := sel.Validate(); err != nil {
		return nil, errors.Validation(err.Error(), nil)
	}
	if _, err := s.clinics.GetClinic(ctx, caller, clinicID); err != nil {
		return nil, err
	}

	cancelled, err := s.slots.Delete(ctx, clinicID, sel)
	if err != nil {
		err = s.explain(ctx, clinicID, sel, model.TransitionCancel, err)
		s.observe(model.TransitionCancel, err)
		return nil, err
	}
	s.observe(model.TransitionCancel, nil)

	s.logger.Info().
		Str("clinic_id", clinicID.String()).
		Str("slot_id", cancelled.ID.String()).
		Msg("slot cancelled")
	s.events.Publish(ctx, event.SlotCancelled, cancelled)

	remaining, err := s.slots.ListByClinic(ctx, clinicID)
	if err != nil {
		return nil, service.StoreError("clinic", err)
	}
	return nonNil(remaining), nil
}

// CompleteSlot marks a booked slot as completed.
func (s *Service) CompleteSlot(ctx context.Context, caller model.Identity, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error) {
	if err := sel.Validate(); err != nil {
		return nil, errors.Validation(err.Error(), nil)
	}
	if _, err := s.clinics.GetClinic(ctx, caller, clinicID); err != nil {
		return nil, err
	}

	completed, err := s.slots.Complete(ctx, clinicID, sel)
	if err != nil {
		err = s.explain(ctx, clinicID, sel, model.TransitionComplete, err)
		s.observe(model.TransitionComplete, err)
		return nil, err
	}
	s.observe(model.TransitionComplete, nil)

	s.logger.Info().
		Str("clinic_id", clinicID.String()).
		Str("slot_id", completed.ID.String()).
		Msg("slot completed")
	s.events.Publish(ctx, event.SlotCompleted, completed)
	return completed, nil
}

// ListClinicSlots is the owner's view, booking details included.
func (s *Service) ListClinicSlots(ctx context.Context, caller model.Identity, clinicID uuid.UUID) ([]*model.Slot, error) {
	if _, err := s.clinics.GetClinic(ctx, caller, clinicID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByClinic(ctx, clinicID)
	if err != nil {
		return nil, service.StoreError("clinic", err)
	}
	return nonNil(slots), nil
}

// explain turns a failed conditional write into a caller-facing error. The
// follow-up read only picks the message; the write already decided.
func (s *Service) explain(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector, t model.Transition, err error) error {
	if !stderrors.Is(err, repository.ErrConflict) {
		return service.StoreError("slot", err)
	}

	current, getErr := s.slots.Get(ctx, clinicID, sel)
	if getErr != nil {
		return service.StoreError("slot", getErr)
	}
	return errors.PreconditionFailed(Rejection(t, current.State()), err)
}

func (s *Service) observe(t model.Transition, err error) {
	s.metrics.Transitions.WithLabelValues(string(t), Outcome(err)).Inc()
}

// Rejection describes why t cannot be applied to a slot in state.
func Rejection(t model.Transition, state model.SlotState) string {
	switch {
	case t == model.TransitionCancel && state == model.SlotStateBooked:
		return "slot is booked and cannot be cancelled"
	case t == model.TransitionComplete && state == model.SlotStateOpen:
		return "slot has not been booked yet"
	case t == model.TransitionRelease && state == model.SlotStateOpen:
		return "slot is not booked"
	case state == model.SlotStateCompleted:
		return "slot is already completed"
	default:
		return fmt.Sprintf("cannot %s a slot that is %s", t, state)
	}
}

// Outcome converts a service error into a metrics label.
func Outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	appErr, ok := errors.As(err)
	if !ok {
		return metrics.OutcomeError
	}
	switch appErr.Code {
	case errors.ErrSlotUnavailable:
		return metrics.OutcomeUnavailable
	case errors.ErrPreconditionFailed:
		return metrics.OutcomePrecondition
	case errors.ErrNotFound:
		return metrics.OutcomeNotFound
	case errors.ErrValidation:
		return metrics.OutcomeInvalid
	case errors.ErrStorageUnavailable:
		return metrics.OutcomeStorage
	default:
		return metrics.OutcomeError
	}
}

func nonNil(slots []*model.Slot) []*model.Slot {
	if slots == nil {
		return []*model.Slot{}
	}
	return slots
}
