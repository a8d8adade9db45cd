package portfolio

import (
	"github.com/gin-gonic/gin"

	"github.com/quantdesk/quantdesk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for portfolio endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// SummaryHandler handles GET /trading/portfolio.
func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.GetSummary(c.Request.Context(), c.GetString("userID"))
		response.Handle(c, summary, err)
	}
}
