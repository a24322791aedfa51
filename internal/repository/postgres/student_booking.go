package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/internal/repository"
)

const bookingColumns = `student_id, clinic_id, slot_id, slot_start, created_at`

type studentBookingRepository struct {
	BaseRepository
}

func NewStudentBookingRepository(base BaseRepository) repository.StudentBookingRepository {
	return &studentBookingRepository{base}
}

func (r *studentBookingRepository) Add(ctx context.Context, booking *model.StudentBooking) error {
	query := `
		INSERT INTO student_bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, slot_id) DO NOTHING
	`
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = model.NormalizeInstant(time.Now())
	}

	_, err := r.db.ExecContext(ctx, query,
		booking.StudentID,
		booking.ClinicID,
		booking.SlotID,
		model.NormalizeInstant(booking.SlotStart),
		booking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add student booking: %w", classify(err))
	}
	return nil
}

func (r *studentBookingRepository) Remove(ctx context.Context, studentID, slotID uuid.UUID) error {
	query := `DELETE FROM student_bookings WHERE student_id = $1 AND slot_id = $2`

	if _, err := r.db.ExecContext(ctx, query, studentID, slotID); err != nil {
		return fmt.Errorf("failed to remove student booking: %w", classify(err))
	}
	return nil
}

func (r *studentBookingRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.StudentBooking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM student_bookings
		WHERE student_id = $1
		ORDER BY slot_start, slot_id
	`
	return r.list(ctx, query, studentID)
}

// ListStale returns mirror rows whose slot was deleted, released, or is held
// by someone else.
func (r *studentBookingRepository) ListStale(ctx context.Context, limit int) ([]*model.StudentBooking, error) {
	query := `
		SELECT b.student_id, b.clinic_id, b.slot_id, b.slot_start, b.created_at
		FROM student_bookings b
		LEFT JOIN slots s ON s.id = b.slot_id
		WHERE s.id IS NULL
			OR s.is_booked = false
			OR s.booked_by_student_id IS DISTINCT FROM b.student_id
		ORDER BY b.slot_start, b.slot_id
		LIMIT $1
	`
	return r.list(ctx, query, nullLimit(limit))
}

// ListMissing returns booked slots that have no mirror row for their holder.
func (r *studentBookingRepository) ListMissing(ctx context.Context, limit int) ([]*model.StudentBooking, error) {
	query := `
		SELECT
			s.booked_by_student_id AS student_id,
			s.clinic_id,
			s.id AS slot_id,
			s.start_at AS slot_start,
			s.updated_at AS created_at
		FROM slots s
		LEFT JOIN student_bookings b
			ON b.slot_id = s.id AND b.student_id = s.booked_by_student_id
		WHERE s.is_booked = true AND b.slot_id IS NULL
		ORDER BY s.start_at, s.id
		LIMIT $1
	`
	return r.list(ctx, query, nullLimit(limit))
}

func (r *studentBookingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.StudentBooking, error) {
	var bookings []*model.StudentBooking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list student bookings: %w", classify(err))
	}
	for _, b := range bookings {
		b.SlotStart = b.SlotStart.UTC()
		b.CreatedAt = b.CreatedAt.UTC()
	}
	return bookings, nil
}
