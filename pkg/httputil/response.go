package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/shadowing-api/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all successful API responses
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// ErrorResponse is the body of every failed request. Retryable tells the
// client whether sending the same request again may succeed.
type ErrorResponse struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	RespondWithStatus(c, http.StatusOK, data)
}

func RespondWithCreated(c *gin.Context, data interface{}) {
	RespondWithStatus(c, http.StatusCreated, data)
}

func RespondWithStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: StatusSuccess,
		Data:   data,
	})
}

// RespondWithError sends an error response. Errors that are not an AppError
// are reported as internal without leaking their text.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}
	_ = c.Error(err)

	c.AbortWithStatusJSON(appErr.StatusCode(), NewErrorResponse(appErr))
}

func NewErrorResponse(appErr *errors.AppError) ErrorResponse {
	return ErrorResponse{
		Status:    StatusError,
		Code:      string(appErr.Code),
		Message:   appErr.Message,
		Retryable: appErr.Retryable(),
	}
}
