package nearby

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/shadowing-api/internal/middleware"
	"github.com/jwalitptl/shadowing-api/internal/model"
	nearbyService "github.com/jwalitptl/shadowing-api/internal/service/nearby"
	"github.com/jwalitptl/shadowing-api/pkg/httputil"
)

type Handler struct {
	service nearbyService.NearbyServicer
}

func NewHandler(service nearbyService.NearbyServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/nearby", h.Nearby)
}

// Nearby answers GET /nearby?lat=&lng=&radius= (meters) or radiusKm=.
func (h *Handler) Nearby(c *gin.Context) {
	var req model.NearbyRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}
	q, err := nearbyService.QueryFromRequest(req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	clinics, err := h.service.Nearby(c.Request.Context(), q)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, clinics)
}
