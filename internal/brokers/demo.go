package brokers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

// DemoBroker simulates order execution for demo-mode accounts. Fills carry
// randomized latency, a success rate, partial fills under a liquidity factor
// and a taker fee, so demo portfolios behave like imperfect live ones.
type DemoBroker struct {
	minLatency      time.Duration
	maxLatency      time.Duration
	liquidityFactor float64
	successRate     float64
	feeRate         float64

	mu        sync.Mutex
	rng       *rand.Rand
	orders    map[string]*types.OrderResult
	positions map[string][]types.BrokerPosition
}

// DemoConfig tunes the simulated broker's execution behaviour.
type DemoConfig struct {
	MinLatency      time.Duration
	MaxLatency      time.Duration
	LiquidityFactor float64
	SuccessRate     float64
	FeeRate         float64
	Seed            int64
}

// NewDemoBroker creates the simulated broker with realistic defaults.
func NewDemoBroker() *DemoBroker {
	return NewDemoBrokerWith(DemoConfig{
		MinLatency:      5 * time.Millisecond,
		MaxLatency:      40 * time.Millisecond,
		LiquidityFactor: 0.85,
		SuccessRate:     0.97,
		FeeRate:         0.001,
		Seed:            time.Now().UnixNano(),
	})
}

// NewDemoBrokerWith creates a simulated broker with explicit parameters.
func NewDemoBrokerWith(cfg DemoConfig) *DemoBroker {
	if cfg.MaxLatency <= cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency + time.Millisecond
	}
	return &DemoBroker{
		minLatency:      cfg.MinLatency,
		maxLatency:      cfg.MaxLatency,
		liquidityFactor: cfg.LiquidityFactor,
		successRate:     cfg.SuccessRate,
		feeRate:         cfg.FeeRate,
		rng:             rand.New(rand.NewSource(cfg.Seed)),
		orders:          make(map[string]*types.OrderResult),
		positions:       make(map[string][]types.BrokerPosition),
	}
}

func (d *DemoBroker) Name() string { return types.BrokerDemo }

func (d *DemoBroker) GetBalance(ctx context.Context, creds Credentials) ([]types.Balance, error) {
	return []types.Balance{
		{Currency: "USDT", Total: 100000, Available: 100000},
	}, nil
}

func (d *DemoBroker) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	d.mu.Lock()
	price := 100 + d.rng.Float64()*10
	d.mu.Unlock()
	return &types.Ticker{Symbol: symbol, Price: price, UpdatedAt: time.Now()}, nil
}

// PlaceOrder simulates an execution against the request price.
func (d *DemoBroker) PlaceOrder(ctx context.Context, creds Credentials, req types.OrderRequest) (*types.OrderResult, error) {
	logger := log.With().
		Str("broker", d.Name()).
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Float64("quantity", req.Quantity).
		Logger()

	d.mu.Lock()
	latency := d.minLatency + time.Duration(d.rng.Int63n(int64(d.maxLatency-d.minLatency)))
	failed := d.rng.Float64() > d.successRate
	variance := 1 + (d.rng.Float64()*0.04 - 0.02)
	partial := d.rng.Float64() > d.liquidityFactor
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(latency):
	}

	if failed {
		logger.Warn().Msg("simulated execution failed")
		return nil, fmt.Errorf("%w: simulated execution failure", ErrOrderRejected)
	}

	fillPrice := req.Price * variance
	if req.OrderType == "MARKET" || req.Price == 0 {
		ticker, _ := d.GetTicker(ctx, req.Symbol)
		fillPrice = ticker.Price * variance
	}

	filledQty := req.Quantity
	status := types.OrderStatusFilled
	if partial {
		filledQty = req.Quantity * d.liquidityFactor
		status = types.OrderStatusPartialFill
		logger.Debug().
			Float64("requested", req.Quantity).
			Float64("filled", filledQty).
			Msg("partial fill under simulated liquidity")
	}

	result := &types.OrderResult{
		BrokerOrderID:  fmt.Sprintf("DEMO-%d", d.rng.Int63()),
		Status:         status,
		FilledQuantity: filledQty,
		AvgFillPrice:   fillPrice,
		Fee:            fillPrice * filledQty * d.feeRate,
	}

	d.mu.Lock()
	d.orders[result.BrokerOrderID] = result
	d.recordPosition(creds.APIKey, req, result)
	d.mu.Unlock()

	logger.Info().
		Str("broker_order_id", result.BrokerOrderID).
		Float64("fill_price", result.AvgFillPrice).
		Float64("filled_quantity", result.FilledQuantity).
		Msg("simulated order executed")

	return result, nil
}

func (d *DemoBroker) CancelOrder(ctx context.Context, creds Credentials, symbol, brokerOrderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	order, ok := d.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("unknown order %s", brokerOrderID)
	}
	if order.Status == types.OrderStatusFilled {
		return fmt.Errorf("order %s is already filled", brokerOrderID)
	}
	order.Status = types.OrderStatusCancelled
	return nil
}

func (d *DemoBroker) GetOrderStatus(ctx context.Context, creds Credentials, symbol, brokerOrderID string) (*types.OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	order, ok := d.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", brokerOrderID)
	}
	copied := *order
	return &copied, nil
}

func (d *DemoBroker) GetOpenPositions(ctx context.Context, creds Credentials) ([]types.BrokerPosition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.BrokerPosition(nil), d.positions[creds.APIKey]...), nil
}

// recordPosition nets the fill into the per-account position book. Caller
// holds d.mu.
func (d *DemoBroker) recordPosition(accountKey string, req types.OrderRequest, result *types.OrderResult) {
	book := d.positions[accountKey]
	qty := result.FilledQuantity
	if req.Side == "SELL" {
		qty = -qty
	}

	for i := range book {
		if book[i].Symbol != req.Symbol {
			continue
		}
		signed := book[i].Quantity
		if book[i].Side == "SHORT" {
			signed = -signed
		}
		signed += qty
		switch {
		case signed > 0:
			book[i].Side = "LONG"
			book[i].Quantity = signed
		case signed < 0:
			book[i].Side = "SHORT"
			book[i].Quantity = -signed
		default:
			book = append(book[:i], book[i+1:]...)
		}
		d.positions[accountKey] = book
		return
	}

	side := "LONG"
	if qty < 0 {
		side = "SHORT"
		qty = -qty
	}
	d.positions[accountKey] = append(book, types.BrokerPosition{
		Symbol:     req.Symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: result.AvgFillPrice,
		MarkPrice:  result.AvgFillPrice,
	})
}
