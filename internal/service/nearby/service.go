package nearby

import (
	"context"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/shadowing-api/internal/geo"
	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
	"github.com/jwalitptl/shadowing-api/internal/service"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/metrics"
)

// DefaultMaxRadiusMeters caps a search at 50 km.
const DefaultMaxRadiusMeters = 50_000

var tracer = otel.Tracer("github.com/jwalitptl/shadowing-api/internal/service/nearby")

type Config struct {
	MaxRadiusMeters float64
}

type NearbyServicer interface {
	Nearby(ctx context.Context, q model.NearbyQuery) ([]*model.NearbyClinic, error)
}

type Service struct {
	slots   repository.SlotRepository
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  Config
}

func NewService(slots repository.SlotRepository, m *metrics.Metrics, logger zerolog.Logger, config Config) *Service {
	if config.MaxRadiusMeters <= 0 {
		config.MaxRadiusMeters = DefaultMaxRadiusMeters
	}
	return &Service{
		slots:   slots,
		metrics: m,
		logger:  logger,
		config:  config,
	}
}

// Nearby lists clinics with at least one open slot whose effective location
// (the slot's own point, else its clinic's) lies within the radius. Results
// are nearest first and never include booked slots.
func (s *Service) Nearby(ctx context.Context, q model.NearbyQuery) ([]*model.NearbyClinic, error) {
	if err := s.validate(q); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "nearby.Search", trace.WithAttributes(
		attribute.Float64("geo.lat", q.Point.Lat()),
		attribute.Float64("geo.lng", q.Point.Lng()),
		attribute.Float64("geo.radius_m", q.RadiusMeters),
	))
	defer span.End()

	timer := prometheus.NewTimer(s.metrics.NearbyLatency)
	clinics, err := s.slots.ListOpenNear(ctx, q)
	timer.ObserveDuration()
	if err != nil {
		span.RecordError(err)
		return nil, service.StoreError("slot", err)
	}
	span.SetAttributes(attribute.Int("nearby.clinics", len(clinics)))

	if clinics == nil {
		clinics = []*model.NearbyClinic{}
	}
	s.metrics.NearbyResults.Observe(float64(len(clinics)))
	s.logger.Debug().
		Float64("lat", q.Point.Lat()).
		Float64("lng", q.Point.Lng()).
		Float64("radius_m", q.RadiusMeters).
		Int("clinics", len(clinics)).
		Msg("nearby search")
	return clinics, nil
}

func (s *Service) validate(q model.NearbyQuery) error {
	if err := q.Point.Validate(); err != nil {
		return errors.Validation("invalid search point", err)
	}
	r := q.RadiusMeters
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return errors.Validation("radius must be a positive number of meters", nil)
	}
	if r > s.config.MaxRadiusMeters {
		return errors.Validation("radius exceeds the maximum search distance", nil)
	}
	return nil
}

// QueryFromRequest resolves the query-string form. radius is in meters;
// radiusKm is accepted for clients that think in kilometres. When both are
// given, radius wins.
func QueryFromRequest(req model.NearbyRequest) (model.NearbyQuery, error) {
	if req.Lat == nil || req.Lng == nil {
		return model.NearbyQuery{}, errors.Validation("lat and lng are required", nil)
	}

	var radius float64
	switch {
	case req.Radius != nil:
		radius = *req.Radius
	case req.RadiusKm != nil:
		radius = geo.KilometersToMeters(*req.RadiusKm)
	default:
		return model.NearbyQuery{}, errors.Validation("radius or radiusKm is required", nil)
	}

	return model.NearbyQuery{
		Point:        *geo.NewPoint(*req.Lng, *req.Lat),
		RadiusMeters: radius,
	}, nil
}
