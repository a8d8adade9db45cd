package trading

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quantdesk/quantdesk-api/internal/accounts"
	"github.com/quantdesk/quantdesk-api/pkg/response"
)

// PlaceOrderRequest is the order submission payload.
type PlaceOrderRequest struct {
	AccountID string  `json:"account_id" binding:"required"`
	Symbol    string  `json:"symbol" binding:"required"`
	Side      string  `json:"side" binding:"required"`
	OrderType string  `json:"order_type" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required"`
	Price     float64 `json:"price"`
}

// GinHandlers contains HTTP handlers for trading endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// PlaceOrderHandler handles POST /trading/orders. An Idempotency-Key header
// is required so retried submissions cannot double-trade.
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		order, err := h.service.PlaceOrder(c.Request.Context(), c.GetString("userID"), PlaceOrderParams{
			AccountID: req.AccountID,
			Symbol:    req.Symbol,
			Side:      req.Side,
			OrderType: req.OrderType,
			Quantity:  req.Quantity,
			Price:     req.Price,
		}, idempotencyKey)

		switch {
		case errors.Is(err, accounts.ErrAccountNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrPlanRequired):
			response.Forbidden(c, err.Error())
		case errors.Is(err, ErrInvalidOrder):
			response.BadRequest(c, err.Error())
		default:
			response.Handle(c, order, err)
		}
	}
}

// GetOrderHandler handles GET /trading/orders/:order_id.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.GetString("userID"), c.Param("order_id"))
		if errors.Is(err, ErrOrderNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, order, err)
	}
}

// ListOrdersHandler handles GET /trading/orders.
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if v := c.Query("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		orders, err := h.service.ListOrders(c.GetString("userID"), limit)
		response.Handle(c, orders, err)
	}
}

// CancelOrderHandler handles DELETE /trading/orders/:order_id.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.CancelOrder(c.Request.Context(), c.GetString("userID"), c.Param("order_id"))
		switch {
		case errors.Is(err, ErrOrderNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrOrderNotCancelable):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, order, err)
		}
	}
}

// ListPositionsHandler handles GET /trading/positions.
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		positions, err := h.service.ListOpenPositions(c.GetString("userID"))
		response.Handle(c, positions, err)
	}
}
