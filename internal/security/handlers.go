package security

import (
	"github.com/gin-gonic/gin"

	"github.com/quantdesk/quantdesk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the security endpoints.
type GinHandlers struct {
	csrf *CSRFService
}

func NewGinHandlers(csrf *CSRFService) *GinHandlers {
	return &GinHandlers{csrf: csrf}
}

// CSRFTokenHandler handles GET /csrf. Tokens are bound to the authenticated
// user when a session is present, falling back to the client IP for
// pre-login forms.
func (h *GinHandlers) CSRFTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetString("userID")
		if sessionID == "" {
			sessionID = c.ClientIP()
		}
		response.Success(c, gin.H{"csrf_token": h.csrf.Issue(sessionID)})
	}
}
