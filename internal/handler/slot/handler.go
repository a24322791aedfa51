package slot

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/handler"
	"github.com/jwalitptl/shadowing-api/internal/middleware"
	"github.com/jwalitptl/shadowing-api/internal/model"
	slotService "github.com/jwalitptl/shadowing-api/internal/service/slot"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/httputil"
)

type Handler struct {
	service slotService.SlotServicer
}

func NewHandler(service slotService.SlotServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	slots := r.Group("/clinics/:clinicId/slots")
	{
		slots.GET("", h.ListSlots)
		slots.POST("", h.CreateSlot)
		slots.POST("/complete", h.CompleteSlot)
		slots.DELETE("", h.CancelSlot)
		slots.DELETE("/:slotId", h.CancelSlot)
	}
}

// target resolves the caller and the clinic in the path.
func target(c *gin.Context) (model.Identity, uuid.UUID, bool) {
	caller, err := handler.Caller(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return model.Identity{}, uuid.Nil, false
	}
	clinicID, err := handler.UUIDParam(c, "clinicId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return model.Identity{}, uuid.Nil, false
	}
	return caller, clinicID, true
}

func (h *Handler) CreateSlot(c *gin.Context) {
	caller, clinicID, ok := target(c)
	if !ok {
		return
	}

	var req model.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}

	slot, err := h.service.CreateSlot(c.Request.Context(), caller, clinicID, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, slot)
}

func (h *Handler) ListSlots(c *gin.Context) {
	caller, clinicID, ok := target(c)
	if !ok {
		return
	}

	slots, err := h.service.ListClinicSlots(c.Request.Context(), caller, clinicID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}

// CancelSlot accepts the slot id in the path or, for older clients, a start
// timestamp in the query string. It answers with the clinic's remaining slots.
func (h *Handler) CancelSlot(c *gin.Context) {
	caller, clinicID, ok := target(c)
	if !ok {
		return
	}

	req := model.SlotSelectorRequest{SlotID: c.Param("slotId"), Start: c.Query("start")}
	sel, err := req.Selector()
	if err != nil {
		httputil.RespondWithError(c, errors.Validation(err.Error(), err))
		return
	}

	remaining, err := h.service.CancelSlot(c.Request.Context(), caller, clinicID, sel)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, remaining)
}

func (h *Handler) CompleteSlot(c *gin.Context) {
	caller, clinicID, ok := target(c)
	if !ok {
		return
	}

	var req model.SlotSelectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}
	sel, err := req.Selector()
	if err != nil {
		httputil.RespondWithError(c, errors.Validation(err.Error(), err))
		return
	}

	slot, err := h.service.CompleteSlot(c.Request.Context(), caller, clinicID, sel)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slot)
}
