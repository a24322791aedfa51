package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/shadowing-api/internal/config"
	"github.com/jwalitptl/shadowing-api/internal/repository"
)

func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", classify(err))
	}

	return db, nil
}

// Store bundles the repositories that share one connection pool.
type Store struct {
	BaseRepository
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{NewBaseRepository(db)}
}

func (s *Store) Clinics() repository.ClinicRepository { return NewClinicRepository(s.BaseRepository) }

func (s *Store) Slots() repository.SlotRepository { return NewSlotRepository(s.BaseRepository) }

func (s *Store) Bookings() repository.StudentBookingRepository {
	return NewStudentBookingRepository(s.BaseRepository)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}
