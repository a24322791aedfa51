package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

// Reconciler repairs the student booking mirror against the slots.
type Reconciler interface {
	Reconcile(ctx context.Context, batch int) (model.ReconcileReport, error)
}

type ReconcilerConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// ReconcileWorker runs a Reconciler on a fixed interval until its context
// is cancelled.
type ReconcileWorker struct {
	reconciler Reconciler
	config     ReconcilerConfig
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewReconcileWorker(
	reconciler Reconciler,
	config ReconcilerConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *ReconcileWorker {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}

	return &ReconcileWorker{
		reconciler: reconciler,
		config:     config,
		logger:     logger,
		metrics:    metrics,
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.logger.Info("Starting booking reconciler", "interval", w.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down booking reconciler")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error(err, "Failed to reconcile bookings")
			}
		}
	}
}

// RunOnce performs a single pass and reports what it repaired.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (model.ReconcileReport, error) {
	timer := prometheus.NewTimer(w.metrics.ReconcileLatency)
	defer timer.ObserveDuration()

	report, err := w.reconciler.Reconcile(ctx, w.config.BatchSize)
	if err != nil {
		w.metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return report, fmt.Errorf("failed to reconcile booking mirror: %w", err)
	}
	w.metrics.ReconcileRuns.WithLabelValues("success").Inc()

	if report != (model.ReconcileReport{}) {
		w.logger.Info("Reconciled booking mirror",
			"stale_removed", report.StaleRemoved,
			"missing_added", report.MissingAdded,
			"failed_repairs", report.FailedRepairs)
	}
	return report, nil
}
