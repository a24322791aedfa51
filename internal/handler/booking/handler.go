package booking

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/handler"
	"github.com/jwalitptl/shadowing-api/internal/middleware"
	"github.com/jwalitptl/shadowing-api/internal/model"
	bookingService "github.com/jwalitptl/shadowing-api/internal/service/booking"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/httputil"
)

type Handler struct {
	service bookingService.BookingServicer
}

func NewHandler(service bookingService.BookingServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.BookSlot)
		bookings.GET("", h.ListMine)
		bookings.DELETE("/:clinicId/:slotId", h.ReleaseSlot)
	}
}

// BookSlot reserves a slot for the calling student. A repeat by the student
// who already holds the slot answers 200 instead of 201.
func (h *Handler) BookSlot(c *gin.Context) {
	caller, err := handler.Caller(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}
	clinicID, err := uuid.Parse(req.ClinicID)
	if err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid clinicId", err))
		return
	}
	sel, err := req.Selector()
	if err != nil {
		httputil.RespondWithError(c, errors.Validation(err.Error(), err))
		return
	}

	result, err := h.service.Book(c.Request.Context(), bookingService.BookRequest{
		ClinicID:  clinicID,
		Selector:  sel,
		StudentID: caller.UserID,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if result.AlreadyHeld {
		httputil.RespondWithSuccess(c, result)
		return
	}
	httputil.RespondWithCreated(c, result)
}

func (h *Handler) ReleaseSlot(c *gin.Context) {
	caller, err := handler.Caller(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	clinicID, err := handler.UUIDParam(c, "clinicId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	slotID, err := handler.UUIDParam(c, "slotId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	slot, err := h.service.Release(c.Request.Context(), clinicID, slotID, caller.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slot)
}

func (h *Handler) ListMine(c *gin.Context) {
	caller, err := handler.Caller(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	bookings, err := h.service.ListMine(c.Request.Context(), caller.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, bookings)
}
