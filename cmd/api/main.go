package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/shadowing-api/internal/bootstrap"
	"github.com/jwalitptl/shadowing-api/internal/config"
	bookingHandler "github.com/jwalitptl/shadowing-api/internal/handler/booking"
	clinicHandler "github.com/jwalitptl/shadowing-api/internal/handler/clinic"
	"github.com/jwalitptl/shadowing-api/internal/handler/health"
	nearbyHandler "github.com/jwalitptl/shadowing-api/internal/handler/nearby"
	slotHandler "github.com/jwalitptl/shadowing-api/internal/handler/slot"
	"github.com/jwalitptl/shadowing-api/internal/middleware"
	"github.com/jwalitptl/shadowing-api/internal/repository"
	"github.com/jwalitptl/shadowing-api/internal/router"
	bookingService "github.com/jwalitptl/shadowing-api/internal/service/booking"
	clinicService "github.com/jwalitptl/shadowing-api/internal/service/clinic"
	eventService "github.com/jwalitptl/shadowing-api/internal/service/event"
	nearbyService "github.com/jwalitptl/shadowing-api/internal/service/nearby"
	slotService "github.com/jwalitptl/shadowing-api/internal/service/slot"
	"github.com/jwalitptl/shadowing-api/pkg/auth"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
	"github.com/jwalitptl/shadowing-api/pkg/tracing"
)

const metricsNamespace = "shadowing"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	if cfg.Log.JSON {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		log.Fatal(err, "Failed to initialise tracing")
	}

	// Initialize storage
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal(err, "Failed to open store")
	}
	defer closeStore()

	broker, closeBroker, err := bootstrap.OpenBroker(ctx, cfg.Redis, cfg.Database.ConnectAttempts, log)
	if err != nil {
		log.Fatal(err, "Failed to connect to Redis")
	}
	defer closeBroker()

	// Metrics
	m := metrics.New(metricsNamespace)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(registry); err != nil {
		log.Fatal(err, "Failed to register metrics")
	}

	// Initialize services
	zl := log.Zerolog()
	events := eventService.NewService(broker, zl, m,
		eventService.WithChannel(cfg.Redis.Channel),
		eventService.WithTimeout(cfg.Redis.PublishTimeout),
	)
	clinicSvc := clinicService.NewService(store.Clinics(), zl)
	slotSvc := slotService.NewService(clinicSvc, store.Slots(), events, m, zl, slotService.Config{AllowPast: cfg.Slots.AllowPast})
	bookingSvc := bookingService.NewService(store.Slots(), store.Bookings(), events, m, zl)
	nearbySvc := nearbyService.NewService(store.Slots(), m, zl, nearbyService.Config{MaxRadiusMeters: cfg.Nearby.MaxRadiusMeters})

	// Readiness checks
	checks := map[string]repository.Pinger{"store": store}
	if p, ok := broker.(repository.Pinger); ok {
		checks["redis"] = p
	}

	// Setup router
	jwt := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwt, cfg.JWT.CacheTTL),
		router.Handlers{
			Health:  health.NewHandler(registry, checks),
			Clinic:  clinicHandler.NewHandler(clinicSvc),
			Slot:    slotHandler.NewHandler(slotSvc),
			Booking: bookingHandler.NewHandler(bookingSvc),
			Nearby:  nearbyHandler.NewHandler(nearbySvc),
		},
		log,
		m,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       middleware.DefaultCORSConfig(),
			RequestTimeout:   cfg.Server.RequestTimeout,
			ServiceName:      cfg.Tracing.ServiceName,
		},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info("Starting server", "port", cfg.Server.Port, "store", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn(err, "Failed to flush traces")
	}

	log.Info("Server exited properly")
}
