package clinic

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/shadowing-api/internal/handler"
	"github.com/jwalitptl/shadowing-api/internal/middleware"
	"github.com/jwalitptl/shadowing-api/internal/model"
	clinicService "github.com/jwalitptl/shadowing-api/internal/service/clinic"
	"github.com/jwalitptl/shadowing-api/pkg/httputil"
)

type Handler struct {
	service clinicService.ClinicServicer
}

func NewHandler(service clinicService.ClinicServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	clinics := r.Group("/clinics")
	{
		clinics.POST("", h.CreateClinic)
		clinics.GET("", h.ListClinics)
		clinics.GET("/:clinicId", h.GetClinic)
	}
}

func (h *Handler) CreateClinic(c *gin.Context) {
	caller, err := handler.Caller(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.CreateClinicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}

	clinic, err := h.service.CreateClinic(c.Request.Context(), caller, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, clinic)
}

func (h *Handler) GetClinic(c *gin.Context) {
	caller, err := handler.Caller(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "clinicId")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	clinic, err := h.service.GetClinic(c.Request.Context(), caller, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, clinic)
}

func (h *Handler) ListClinics(c *gin.Context) {
	caller, err := handler.Caller(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	clinics, err := h.service.ListClinics(c.Request.Context(), caller)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, clinics)
}
