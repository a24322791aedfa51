package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
)

const clinicColumns = `
	id, doctor_id, name, address,
	ST_X(location::geometry) AS lng, ST_Y(location::geometry) AS lat,
	created_at, updated_at`

type clinicRow struct {
	ID        uuid.UUID       `db:"id"`
	DoctorID  uuid.UUID       `db:"doctor_id"`
	Name      string          `db:"name"`
	Address   string          `db:"address"`
	Lng       sql.NullFloat64 `db:"lng"`
	Lat       sql.NullFloat64 `db:"lat"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r clinicRow) toModel() *model.Clinic {
	return &model.Clinic{
		ID:        r.ID,
		DoctorID:  r.DoctorID,
		Name:      r.Name,
		Address:   r.Address,
		Location:  scanPoint(r.Lng, r.Lat),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type clinicRepository struct {
	BaseRepository
}

func NewClinicRepository(base BaseRepository) repository.ClinicRepository {
	return &clinicRepository{base}
}

func (r *clinicRepository) Create(ctx context.Context, clinic *model.Clinic) error {
	query := `
		INSERT INTO clinics (
			id, doctor_id, name, address, location, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, ` + makePoint("$5", "$6") + `, $7, $8
		)
	`
	if clinic.ID == uuid.Nil {
		clinic.ID = uuid.New()
	}
	clinic.CreatedAt = model.NormalizeInstant(time.Now())
	clinic.UpdatedAt = clinic.CreatedAt

	lng, lat := pointArgs(clinic.Location)
	_, err := r.db.ExecContext(ctx, query,
		clinic.ID,
		clinic.DoctorID,
		clinic.Name,
		clinic.Address,
		lng,
		lat,
		clinic.CreatedAt,
		clinic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create clinic: %w", classify(err))
	}
	return nil
}

func (r *clinicRepository) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE id = $1`

	var row clinicRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("failed to get clinic: %w", classify(err))
	}
	return row.toModel(), nil
}

func (r *clinicRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Clinic, error) {
	query := `
		SELECT ` + clinicColumns + `
		FROM clinics
		WHERE doctor_id = $1
		ORDER BY created_at, id
	`
	var rows []clinicRow
	if err := r.db.SelectContext(ctx, &rows, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", classify(err))
	}

	clinics := make([]*model.Clinic, 0, len(rows))
	for _, row := range rows {
		clinics = append(clinics, row.toModel())
	}
	return clinics, nil
}
