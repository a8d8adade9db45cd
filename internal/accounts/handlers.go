package accounts

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/quantdesk/quantdesk-api/pkg/response"
)

// CreateRequest is the payload for linking a broker account.
type CreateRequest struct {
	Broker    string `json:"broker" binding:"required"`
	Label     string `json:"label"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	DemoMode  bool   `json:"demo_mode"`
	Currency  string `json:"currency"`
}

// GinHandlers contains HTTP handlers for trading account endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		account, err := h.service.Create(c.GetString("userID"), CreateParams{
			Broker:    req.Broker,
			Label:     req.Label,
			APIKey:    req.APIKey,
			APISecret: req.APISecret,
			DemoMode:  req.DemoMode,
			Currency:  req.Currency,
		})
		if errors.Is(err, ErrInvalidBroker) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts, err := h.service.List(c.GetString("userID"))
		response.Handle(c, accounts, err)
	}
}

func (h *GinHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := h.service.Get(c.GetString("userID"), c.Param("account_id"))
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.service.Delete(c.GetString("userID"), c.Param("account_id"))
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, gin.H{"deleted": true}, err)
	}
}
