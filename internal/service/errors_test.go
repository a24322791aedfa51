package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/shadowing-api/internal/repository"
	apperrors "github.com/jwalitptl/shadowing-api/pkg/errors"
)

func TestStoreError(t *testing.T) {
	assert.NoError(t, StoreError("slot", nil))

	err := StoreError("slot", fmt.Errorf("failed to get slot: %w", repository.ErrNotFound))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
	assert.Equal(t, "slot not found", err.(*apperrors.AppError).Message)

	assert.True(t, apperrors.IsCode(StoreError("slot", repository.ErrUnavailable), apperrors.ErrStorageUnavailable))
	assert.True(t, apperrors.IsCode(StoreError("slot", context.DeadlineExceeded), apperrors.ErrStorageUnavailable))
	assert.True(t, apperrors.IsCode(StoreError("slot", errors.New("boom")), apperrors.ErrInternal))

	forbidden := apperrors.Forbidden("not your clinic")
	assert.Same(t, forbidden, StoreError("slot", forbidden))
}
