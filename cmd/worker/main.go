package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/shadowing-api/internal/bootstrap"
	"github.com/jwalitptl/shadowing-api/internal/config"
	bookingService "github.com/jwalitptl/shadowing-api/internal/service/booking"
	eventService "github.com/jwalitptl/shadowing-api/internal/service/event"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
	"github.com/jwalitptl/shadowing-api/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(log *logger.Logger, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"component": "worker"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal(err, "Failed to open store")
	}
	defer closeStore()

	broker, closeBroker, err := bootstrap.OpenBroker(ctx, cfg.Redis, cfg.Database.ConnectAttempts, log)
	if err != nil {
		log.Fatal(err, "Failed to create Redis broker")
	}
	defer closeBroker()

	m := metrics.New("shadowing")
	registry := prometheus.NewRegistry()
	if err := m.Register(registry); err != nil {
		log.Fatal(err, "Failed to register metrics")
	}
	healthSrv := setupHealthCheck(log, registry)

	events := eventService.NewService(broker, log.Zerolog(), m,
		eventService.WithChannel(cfg.Redis.Channel),
		eventService.WithTimeout(cfg.Redis.PublishTimeout),
	)
	bookings := bookingService.NewService(store.Slots(), store.Bookings(), events, m, log.Zerolog())

	reconciler := worker.NewReconcileWorker(
		bookings,
		worker.ReconcilerConfig{
			BatchSize:    cfg.Reconciler.BatchSize,
			PollInterval: cfg.Reconciler.Interval,
		},
		log,
		m,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Start(ctx)
	}()

	if broker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.NewEventLogger(events, log, m).Start(ctx); err != nil {
				log.Error(err, "Slot event logger stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
}
