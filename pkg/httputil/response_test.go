package httputil

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/shadowing-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		retryable  bool
	}{
		{"validation", errors.Validation("radius must be positive", nil), http.StatusBadRequest, "VALIDATION_ERROR", false},
		{"taken", errors.SlotUnavailable(nil), http.StatusConflict, "SLOT_UNAVAILABLE", false},
		{"storage", errors.StorageUnavailable(stderrors.New("conn reset")), http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", true},
		{"plain error", stderrors.New("secret detail"), http.StatusInternalServerError, "INTERNAL", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			RespondWithError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.True(t, c.IsAborted())

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, StatusError, body.Status)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.retryable, body.Retryable)
			assert.NotContains(t, body.Message, "secret detail")
		})
	}
}

func TestRespondWithCreated(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithCreated(c, gin.H{"clinicId": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":"success","data":{"clinicId":"abc"}}`, w.Body.String())
}
