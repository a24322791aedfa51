package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
	}{
		{Validation("bad", nil), http.StatusBadRequest},
		{Unauthorized("no token", nil), http.StatusUnauthorized},
		{Forbidden("nope"), http.StatusForbidden},
		{NotFound("slot", nil), http.StatusNotFound},
		{SlotUnavailable(nil), http.StatusConflict},
		{PreconditionFailed("not booked", nil), http.StatusConflict},
		{StorageUnavailable(nil), http.StatusServiceUnavailable},
		{RateLimited(), http.StatusTooManyRequests},
		{Internal(nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.StatusCode(), string(tc.err.Code))
	}
}

func TestOnlyTransientFailuresAreRetryable(t *testing.T) {
	assert.True(t, StorageUnavailable(nil).Retryable())
	assert.True(t, RateLimited().Retryable())
	assert.False(t, SlotUnavailable(nil).Retryable())
	assert.False(t, Validation("x", nil).Retryable())
}

func TestIsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("book: %w", SlotUnavailable(nil))
	assert.True(t, IsCode(err, ErrSlotUnavailable))
	assert.False(t, IsCode(err, ErrNotFound))
	assert.False(t, IsCode(fmt.Errorf("plain"), ErrInternal))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := NotFound("clinic", fmt.Errorf("no rows"))
	assert.Equal(t, "clinic not found: no rows", err.Error())
	assert.Equal(t, "clinic not found", NotFound("clinic", nil).Error())
}
