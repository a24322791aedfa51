package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
)

const slotColumns = `
	id, clinic_id, start_at, end_at, address,
	ST_X(location::geometry) AS lng, ST_Y(location::geometry) AS lat,
	is_booked, booked_by_student_id, is_completed, created_at, updated_at`

// Lifecycle predicates, one per transition. They mirror model.CanApply and are
// evaluated inside the statement that performs the transition.
const (
	predAny      = `TRUE`
	predReserve  = `is_booked = false AND is_completed = false`
	predComplete = `is_booked = true AND is_completed = false`
	predCancel   = `is_booked = false AND is_completed = false`
	predRelease  = `is_booked = true AND is_completed = false AND booked_by_student_id = $3`
)

// notHeldAtStart stops a start selector from reserving a second slot at the
// same start for a student who already holds one there ($1 clinic, $2 start,
// $3 student).
const notHeldAtStart = `NOT EXISTS (
			SELECT 1 FROM slots held
			WHERE held.clinic_id = $1 AND held.start_at = $2
				AND held.booked_by_student_id = $3 AND held.is_completed = false
		)`

type slotRow struct {
	ID          uuid.UUID       `db:"id"`
	ClinicID    uuid.UUID       `db:"clinic_id"`
	StartAt     time.Time       `db:"start_at"`
	EndAt       sql.NullTime    `db:"end_at"`
	Address     string          `db:"address"`
	Lng         sql.NullFloat64 `db:"lng"`
	Lat         sql.NullFloat64 `db:"lat"`
	IsBooked    bool            `db:"is_booked"`
	BookedBy    uuid.NullUUID   `db:"booked_by_student_id"`
	IsCompleted bool            `db:"is_completed"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r slotRow) toModel() *model.Slot {
	slot := &model.Slot{
		ID:          r.ID,
		ClinicID:    r.ClinicID,
		Start:       r.StartAt.UTC(),
		Address:     r.Address,
		Location:    scanPoint(r.Lng, r.Lat),
		IsBooked:    r.IsBooked,
		IsCompleted: r.IsCompleted,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.EndAt.Valid {
		end := r.EndAt.Time.UTC()
		slot.End = &end
	}
	if r.BookedBy.Valid {
		id := r.BookedBy.UUID
		slot.BookedByStudentID = &id
	}
	return slot
}

type slotRepository struct {
	BaseRepository
}

func NewSlotRepository(base BaseRepository) repository.SlotRepository {
	return &slotRepository{base}
}

// target renders the WHERE clause addressing one slot of clinic $1 by the
// selector bound to $2. A start selector resolves to the earliest-created row
// satisfying pred; pred is repeated outside the subquery so a concurrent
// writer that changed the row first makes this statement match nothing.
func target(sel model.SlotSelector, pred string) (string, interface{}) {
	if sel.ByID() {
		return `clinic_id = $1 AND id = $2 AND ` + pred, sel.ID
	}
	return `clinic_id = $1 AND ` + pred + ` AND id = (
			SELECT id FROM slots
			WHERE clinic_id = $1 AND start_at = $2 AND ` + pred + `
			ORDER BY seq
			LIMIT 1
		)`, model.NormalizeInstant(*sel.Start)
}

func (r *slotRepository) Create(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (
			id, clinic_id, start_at, end_at, address, location,
			is_booked, booked_by_student_id, is_completed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, ` + makePoint("$6", "$7") + `,
			false, NULL, false, $8, $9
		)
	`
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	slot.Start = model.NormalizeInstant(slot.Start)
	if slot.End != nil {
		end := model.NormalizeInstant(*slot.End)
		slot.End = &end
	}
	slot.IsBooked = false
	slot.BookedByStudentID = nil
	slot.IsCompleted = false
	slot.CreatedAt = model.NormalizeInstant(time.Now())
	slot.UpdatedAt = slot.CreatedAt

	var end sql.NullTime
	if slot.End != nil {
		end = sql.NullTime{Time: *slot.End, Valid: true}
	}
	lng, lat := pointArgs(slot.Location)

	_, err := r.db.ExecContext(ctx, query,
		slot.ID,
		slot.ClinicID,
		slot.Start,
		end,
		slot.Address,
		lng,
		lat,
		slot.CreatedAt,
		slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", classify(err))
	}
	return nil
}

func (r *slotRepository) Get(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error) {
	where, key := target(sel, predAny)
	query := `SELECT ` + slotColumns + ` FROM slots WHERE ` + where

	var row slotRow
	if err := r.db.GetContext(ctx, &row, query, clinicID, key); err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", classify(err))
	}
	return row.toModel(), nil
}

func (r *slotRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE clinic_id = $1
		ORDER BY start_at, id
	`
	return r.list(ctx, query, clinicID)
}

func (r *slotRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Slot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE id = ANY($1::uuid[])
		ORDER BY start_at, id
	`
	return r.list(ctx, query, pq.StringArray(keys))
}

func (r *slotRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.Slot, error) {
	var rows []slotRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", classify(err))
	}

	slots := make([]*model.Slot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, row.toModel())
	}
	return slots, nil
}

func (r *slotRepository) Reserve(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector, studentID uuid.UUID) (*model.Slot, error) {
	where, key := target(sel, predReserve)
	if !sel.ByID() {
		where += ` AND ` + notHeldAtStart
	}
	query := `
		UPDATE slots
		SET is_booked = true, booked_by_student_id = $3, updated_at = now()
		WHERE ` + where + `
		RETURNING ` + slotColumns
	return r.conditional(ctx, "reserve", query, clinicID, key, studentID)
}

func (r *slotRepository) Release(ctx context.Context, clinicID, slotID, studentID uuid.UUID) (*model.Slot, error) {
	where, key := target(model.SelectByID(slotID), predRelease)
	query := `
		UPDATE slots
		SET is_booked = false, booked_by_student_id = NULL, updated_at = now()
		WHERE ` + where + `
		RETURNING ` + slotColumns
	return r.conditional(ctx, "release", query, clinicID, key, studentID)
}

func (r *slotRepository) Complete(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error) {
	where, key := target(sel, predComplete)
	query := `
		UPDATE slots
		SET is_completed = true, updated_at = now()
		WHERE ` + where + `
		RETURNING ` + slotColumns
	return r.conditional(ctx, "complete", query, clinicID, key)
}

func (r *slotRepository) Delete(ctx context.Context, clinicID uuid.UUID, sel model.SlotSelector) (*model.Slot, error) {
	where, key := target(sel, predCancel)
	query := `
		DELETE FROM slots
		WHERE ` + where + `
		RETURNING ` + slotColumns
	return r.conditional(ctx, "cancel", query, clinicID, key)
}

// conditional runs a single-statement transition. No returned row means the
// predicate did not hold (or the slot is absent), reported as ErrConflict.
func (r *slotRepository) conditional(ctx context.Context, op, query string, args ...interface{}) (*model.Slot, error) {
	var row slotRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s slot: %w", op, classify(err))
	}
	return row.toModel(), nil
}
