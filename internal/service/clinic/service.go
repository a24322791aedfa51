package clinic

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
	"github.com/jwalitptl/shadowing-api/internal/service"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
)

type ClinicServicer interface {
	CreateClinic(ctx context.Context, owner model.Identity, req model.CreateClinicRequest) (*model.Clinic, error)
	GetClinic(ctx context.Context, caller model.Identity, id uuid.UUID) (*model.Clinic, error)
	ListClinics(ctx context.Context, owner model.Identity) ([]*model.Clinic, error)
}

type Service struct {
	repo   repository.ClinicRepository
	logger zerolog.Logger
}

func NewService(repo repository.ClinicRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) CreateClinic(ctx context.Context, owner model.Identity, req model.CreateClinicRequest) (*model.Clinic, error) {
	clinic := &model.Clinic{
		DoctorID: owner.UserID,
		Name:     strings.TrimSpace(req.Name),
		Address:  strings.TrimSpace(req.Address),
		Location: req.Location.Point(),
	}
	if err := validateClinic(clinic); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, clinic); err != nil {
		return nil, service.StoreError("clinic", fmt.Errorf("failed to create clinic: %w", err))
	}

	s.logger.Info().
		Str("clinic_id", clinic.ID.String()).
		Str("doctor_id", owner.UserID.String()).
		Msg("clinic created")
	return clinic, nil
}

// GetClinic returns the clinic if caller owns it. Ownership never changes
// after creation, so checking it on a plain read is safe.
func (s *Service) GetClinic(ctx context.Context, caller model.Identity, id uuid.UUID) (*model.Clinic, error) {
	clinic, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, service.StoreError("clinic", err)
	}
	if !CanManage(caller, clinic) {
		return nil, errors.Forbidden("clinic belongs to another physician")
	}
	return clinic, nil
}

func (s *Service) ListClinics(ctx context.Context, owner model.Identity) ([]*model.Clinic, error) {
	clinics, err := s.repo.ListByDoctor(ctx, owner.UserID)
	if err != nil {
		return nil, service.StoreError("clinic", err)
	}
	if clinics == nil {
		clinics = []*model.Clinic{}
	}
	return clinics, nil
}

// CanManage reports whether caller may change the clinic and its slots.
func CanManage(caller model.Identity, clinic *model.Clinic) bool {
	return caller.Role == model.RoleAdmin || clinic.DoctorID == caller.UserID
}

func validateClinic(clinic *model.Clinic) error {
	if clinic.Name == "" {
		return errors.Validation("name is required", nil)
	}
	if clinic.Address == "" {
		return errors.Validation("address is required", nil)
	}
	if clinic.Location != nil {
		if err := clinic.Location.Validate(); err != nil {
			return errors.Validation("invalid location", err)
		}
	}
	return nil
}
