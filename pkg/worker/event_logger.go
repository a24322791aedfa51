package worker

import (
	"context"
	"fmt"

	"github.com/jwalitptl/shadowing-api/internal/service/event"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

// EventSource is satisfied by event.Service.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan event.SlotEvent, error)
}

// EventLogger writes every slot event it receives to the log, giving
// operators an audit trail of bookings without another store.
type EventLogger struct {
	source  EventSource
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewEventLogger(source EventSource, logger *logger.Logger, metrics *metrics.Metrics) *EventLogger {
	return &EventLogger{source: source, logger: logger, metrics: metrics}
}

// Start blocks until ctx is cancelled or the subscription closes.
func (l *EventLogger) Start(ctx context.Context) error {
	events, err := l.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to slot events: %w", err)
	}

	l.logger.Info("Starting slot event logger")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Shutting down slot event logger")
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			l.handle(evt)
		}
	}
}

func (l *EventLogger) handle(evt event.SlotEvent) {
	l.metrics.EventsConsumed.WithLabelValues(string(evt.Type)).Inc()

	fields := []interface{}{
		"event_type", string(evt.Type),
		"clinic_id", evt.ClinicID.String(),
		"slot_id", evt.SlotID.String(),
		"start", evt.Start,
	}
	if evt.StudentID != nil {
		fields = append(fields, "student_id", evt.StudentID.String())
	}
	l.logger.Info("Slot event", fields...)
}
