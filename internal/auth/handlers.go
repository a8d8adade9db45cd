package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantdesk/quantdesk-api/pkg/response"
)

// SessionCookie is the cookie carrying the session token for browser clients.
const SessionCookie = "qd_session"

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// GinHandlers contains HTTP handlers for authentication endpoints.
type GinHandlers struct {
	service *Service
	secure  bool
}

// NewGinHandlers creates the authentication endpoint handlers. secure controls
// the Secure flag on session cookies.
func NewGinHandlers(service *Service, secure bool) *GinHandlers {
	return &GinHandlers{
		service: service,
		secure:  secure,
	}
}

// RegisterHandler handles POST /auth/register.
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		user, err := h.service.Register(req.Email, req.Password, req.Name)
		if errors.Is(err, ErrEmailTaken) {
			response.Conflict(c, err.Error())
			return
		}
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, user)
	}
}

// LoginHandler handles POST /auth/login. On success the token is returned in
// the body and set as an HTTP-only session cookie for browser clients.
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.Login(req.Email, req.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(SessionCookie, token.Token, int(time.Until(token.Expiration).Seconds()), "/", "", h.secure, true)
		response.Success(c, token)
	}
}

// LogoutHandler handles POST /auth/logout by expiring the session cookie.
func (h *GinHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetCookie(SessionCookie, "", -1, "/", "", h.secure, true)
		response.Success(c, gin.H{"logged_out": true})
	}
}
