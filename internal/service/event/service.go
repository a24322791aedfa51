package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/pkg/messaging"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

// DefaultChannel is the pub/sub channel slot events are published on.
const DefaultChannel = "shadowing.slots"

const defaultPublishTimeout = 500 * time.Millisecond

type Type string

const (
	SlotCreated   Type = "slot.created"
	SlotBooked    Type = "slot.booked"
	SlotReleased  Type = "slot.released"
	SlotCompleted Type = "slot.completed"
	SlotCancelled Type = "slot.cancelled"
)

// SlotEvent is the wire form of a lifecycle change. Downstream consumers such
// as chat scope their conversations by SlotID.
type SlotEvent struct {
	Type       Type       `json:"type"`
	ClinicID   uuid.UUID  `json:"clinicId"`
	SlotID     uuid.UUID  `json:"slotId"`
	StudentID  *uuid.UUID `json:"studentId,omitempty"`
	Start      time.Time  `json:"start"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// Publisher is what the domain services depend on.
type Publisher interface {
	Publish(ctx context.Context, typ Type, slot *model.Slot)
}

type Service struct {
	broker  messaging.Broker
	channel string
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithChannel(channel string) Option {
	return func(s *Service) { s.channel = channel }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService accepts a nil broker, in which case events are dropped.
func NewService(broker messaging.Broker, logger zerolog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		broker:  broker,
		channel: DefaultChannel,
		timeout: defaultPublishTimeout,
		logger:  logger,
		metrics: m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish is best-effort: failures are logged and counted, never returned.
func (s *Service) Publish(ctx context.Context, typ Type, slot *model.Slot) {
	evt := NewSlotEvent(typ, slot, time.Now())

	if s.broker == nil {
		s.logger.Debug().Str("type", string(typ)).Str("slot_id", slot.ID.String()).Msg("no broker configured, dropping slot event")
		s.count(typ, "dropped")
		return
	}

	// The request may already be finishing; the publish gets its own deadline.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.broker.Publish(pubCtx, s.channel, evt); err != nil {
		s.logger.Warn().Err(err).
			Str("type", string(typ)).
			Str("slot_id", slot.ID.String()).
			Msg("failed to publish slot event")
		s.count(typ, "failed")
		return
	}
	s.count(typ, "published")
}

// Subscribe decodes events from the channel until ctx is done.
func (s *Service) Subscribe(ctx context.Context) (<-chan SlotEvent, error) {
	if s.broker == nil {
		return nil, fmt.Errorf("no broker configured")
	}
	raw, err := s.broker.Subscribe(ctx, s.channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to slot events: %w", err)
	}

	out := make(chan SlotEvent)
	go func() {
		defer close(out)
		for payload := range raw {
			var evt SlotEvent
			if err := json.Unmarshal(payload, &evt); err != nil {
				s.logger.Warn().Err(err).Msg("skipping undecodable slot event")
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Service) count(typ Type, status string) {
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(string(typ), status).Inc()
	}
}

func NewSlotEvent(typ Type, slot *model.Slot, at time.Time) SlotEvent {
	evt := SlotEvent{
		Type:       typ,
		ClinicID:   slot.ClinicID,
		SlotID:     slot.ID,
		Start:      slot.Start,
		OccurredAt: at.UTC(),
	}
	if slot.BookedByStudentID != nil {
		id := *slot.BookedByStudentID
		evt.StudentID = &id
	}
	return evt
}
