package market

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quantdesk/quantdesk-api/internal/indicators"
	"github.com/quantdesk/quantdesk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for market data endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// PricesHandler handles GET /market/prices?symbols=BTCUSDT,ETHUSDT
func (h *GinHandlers) PricesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("symbols")
		if raw == "" {
			response.BadRequest(c, "symbols query parameter is required")
			return
		}

		symbols := strings.Split(raw, ",")
		for i := range symbols {
			symbols[i] = strings.ToUpper(strings.TrimSpace(symbols[i]))
		}

		tickers, err := h.service.GetPrices(c.Request.Context(), symbols)
		response.Handle(c, tickers, err)
	}
}

// CandlesHandler handles GET /market/candles?symbol=&interval=&limit=
func (h *GinHandlers) CandlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := strings.ToUpper(c.Query("symbol"))
		if symbol == "" {
			response.BadRequest(c, "symbol query parameter is required")
			return
		}

		limit := 100
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				response.BadRequest(c, "limit must be a positive integer")
				return
			}
			limit = n
		}

		candles, err := h.service.GetCandles(c.Request.Context(), symbol, c.DefaultQuery("interval", "1m"), limit)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, candles)
	}
}

// SignalsHandler handles GET /market/signals?symbol= and returns the current
// indicator snapshot for the symbol.
func (h *GinHandlers) SignalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := strings.ToUpper(c.Query("symbol"))
		if symbol == "" {
			response.BadRequest(c, "symbol query parameter is required")
			return
		}

		candles, err := h.service.GetCandles(c.Request.Context(), symbol, c.DefaultQuery("interval", "1h"), 200)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		signal, err := indicators.Evaluate(symbol, candles)
		if errors.Is(err, indicators.ErrNotEnoughData) {
			response.BadRequest(c, "not enough candle data to evaluate signals")
			return
		}
		response.Handle(c, signal, err)
	}
}
