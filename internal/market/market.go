package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

// Service serves ticker prices and candles, caching upstream responses and
// falling back to simulated data when the upstream is unavailable.
type Service struct {
	httpClient *http.Client
	baseURL    string
	cacheTTL   time.Duration

	mu    sync.RWMutex
	cache map[string]cachedTicker

	demoMu sync.Mutex
	demo   map[string]float64
	rng    *rand.Rand
}

type cachedTicker struct {
	ticker    types.Ticker
	fetchedAt time.Time
}

// Reference prices seeding the simulated random walk.
var demoSeeds = map[string]float64{
	"BTCUSDT": 64250.0,
	"ETHUSDT": 3180.0,
	"SOLUSDT": 146.5,
	"ES":      5320.25,
	"NQ":      18650.50,
}

// NewService creates a market data service. baseURL is the upstream public
// ticker API; an empty baseURL forces demo data for every request.
func NewService(baseURL string, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Second
	}
	return &Service{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		cacheTTL:   cacheTTL,
		cache:      make(map[string]cachedTicker),
		demo:       make(map[string]float64),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetPrices returns current tickers for the requested symbols. Cached values
// within the TTL are reused; upstream failures fall back to simulated prices.
func (s *Service) GetPrices(ctx context.Context, symbols []string) ([]types.Ticker, error) {
	tickers := make([]types.Ticker, 0, len(symbols))
	for _, symbol := range symbols {
		if t, ok := s.cached(symbol); ok {
			tickers = append(tickers, t)
			continue
		}

		t, err := s.fetchTicker(ctx, symbol)
		if err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("upstream ticker fetch failed, using simulated price")
			t = s.demoTicker(symbol)
		}

		s.mu.Lock()
		s.cache[symbol] = cachedTicker{ticker: t, fetchedAt: time.Now()}
		s.mu.Unlock()

		tickers = append(tickers, t)
	}
	return tickers, nil
}

// GetPrice returns the current price for a single symbol.
func (s *Service) GetPrice(ctx context.Context, symbol string) (float64, error) {
	tickers, err := s.GetPrices(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	if len(tickers) == 0 {
		return 0, fmt.Errorf("no price for symbol %s", symbol)
	}
	return tickers[0].Price, nil
}

// GetCandles returns up to limit simulated OHLCV bars ending at the current
// price. Bars are generated by a bounded random walk around the symbol's seed.
func (s *Service) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	step, err := intervalDuration(interval)
	if err != nil {
		return nil, err
	}

	price, err := s.GetPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.demoMu.Lock()
	defer s.demoMu.Unlock()

	candles := make([]types.Candle, limit)
	// Walk backwards from the current price so the series ends where the
	// ticker is.
	closePrice := price
	end := time.Now().Truncate(step)
	for i := limit - 1; i >= 0; i-- {
		drift := closePrice * (s.rng.Float64()*0.01 - 0.005)
		openPrice := closePrice - drift
		high := math.Max(openPrice, closePrice) * (1 + s.rng.Float64()*0.003)
		low := math.Min(openPrice, closePrice) * (1 - s.rng.Float64()*0.003)

		candles[i] = types.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: end.Add(time.Duration(i-limit) * step),
			Open:     openPrice,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   100 + s.rng.Float64()*900,
		}
		closePrice = openPrice
	}
	return candles, nil
}

func (s *Service) cached(symbol string) (types.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[symbol]
	if !ok || time.Since(c.fetchedAt) > s.cacheTTL {
		return types.Ticker{}, false
	}
	return c.ticker, true
}

func (s *Service) fetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	if s.baseURL == "" {
		return types.Ticker{}, fmt.Errorf("no upstream configured")
	}

	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", s.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Ticker{}, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return types.Ticker{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Ticker{}, fmt.Errorf("ticker request returned status %d", resp.StatusCode)
	}

	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.Ticker{}, err
	}

	price, err := strconv.ParseFloat(body.Price, 64)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("invalid price %q for %s: %w", body.Price, symbol, err)
	}

	return types.Ticker{
		Symbol:    symbol,
		Price:     price,
		UpdatedAt: time.Now(),
	}, nil
}

// demoTicker advances the symbol's simulated random walk one step.
func (s *Service) demoTicker(symbol string) types.Ticker {
	s.demoMu.Lock()
	defer s.demoMu.Unlock()

	price, ok := s.demo[symbol]
	if !ok {
		price, ok = demoSeeds[symbol]
		if !ok {
			price = 100.0
		}
	}

	// Bounded walk: up to ±0.5% per step.
	price *= 1 + (s.rng.Float64()*0.01 - 0.005)
	s.demo[symbol] = price

	return types.Ticker{
		Symbol:    symbol,
		Price:     price,
		Change24h: s.rng.Float64()*6 - 3,
		UpdatedAt: time.Now(),
	}
}

func intervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "", "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
}
