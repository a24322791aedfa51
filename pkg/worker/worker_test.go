package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/service/event"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

type stubReconciler struct {
	mu      sync.Mutex
	calls   int
	batches []int
	report  model.ReconcileReport
	err     error
}

func (s *stubReconciler) Reconcile(_ context.Context, batch int) (model.ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.batches = append(s.batches, batch)
	return s.report, s.err
}

func (s *stubReconciler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestNewReconcileWorkerRejectsBadConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewReconcileWorker(&stubReconciler{}, ReconcilerConfig{PollInterval: time.Second}, logger.Nop(), metrics.New("test"))
	})
	assert.Panics(t, func() {
		NewReconcileWorker(&stubReconciler{}, ReconcilerConfig{BatchSize: 10}, logger.Nop(), metrics.New("test"))
	})
}

func TestRunOnce(t *testing.T) {
	m := metrics.New("test")
	stub := &stubReconciler{report: model.ReconcileReport{StaleRemoved: 2}}
	w := NewReconcileWorker(stub, ReconcilerConfig{BatchSize: 25, PollInterval: time.Minute}, logger.Nop(), m)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.StaleRemoved)
	assert.Equal(t, []int{25}, stub.batches)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("success")))

	stub.err = errors.New("boom")
	_, err = w.RunOnce(context.Background())
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("error")))
}

func TestStartRunsUntilCancelled(t *testing.T) {
	stub := &stubReconciler{}
	w := NewReconcileWorker(stub, ReconcilerConfig{BatchSize: 5, PollInterval: 5 * time.Millisecond}, logger.Nop(), metrics.New("test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return stub.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

type chanSource struct {
	ch  chan event.SlotEvent
	err error
}

func (c chanSource) Subscribe(context.Context) (<-chan event.SlotEvent, error) {
	return c.ch, c.err
}

func TestEventLoggerLogsEachEvent(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: &buf, JSON: true})
	m := metrics.New("test")
	src := chanSource{ch: make(chan event.SlotEvent, 2)}

	student := uuid.New()
	src.ch <- event.SlotEvent{Type: event.SlotBooked, ClinicID: uuid.New(), SlotID: uuid.New(), StudentID: &student}
	src.ch <- event.SlotEvent{Type: event.SlotCancelled, ClinicID: uuid.New(), SlotID: uuid.New()}
	close(src.ch)

	require.NoError(t, NewEventLogger(src, log, m).Start(context.Background()))
	assert.Contains(t, buf.String(), student.String())
	assert.Contains(t, buf.String(), string(event.SlotCancelled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsConsumed.WithLabelValues(string(event.SlotBooked))))
}

func TestEventLoggerSubscribeError(t *testing.T) {
	src := chanSource{err: errors.New("redis down")}
	err := NewEventLogger(src, logger.Nop(), metrics.New("test")).Start(context.Background())
	assert.ErrorContains(t, err, "redis down")
}
