// Package service holds helpers shared by the domain services.
package service

import (
	"context"
	"errors"

	"github.com/jwalitptl/shadowing-api/internal/repository"
	apperrors "github.com/jwalitptl/shadowing-api/pkg/errors"
)

// StoreError maps a repository failure onto the application taxonomy.
// ErrConflict is deliberately not handled here: its meaning depends on the
// operation and each service classifies it with a follow-up read.
func StoreError(resource string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return apperrors.StorageUnavailable(err)
	default:
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.Internal(err)
	}
}
