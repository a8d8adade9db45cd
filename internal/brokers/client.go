// Package brokers contains the REST client wrappers for the supported
// brokers, plus a simulated broker used for demo-mode accounts.
package brokers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

var (
	ErrUnsupportedBroker = errors.New("unsupported broker")
	ErrMissingCredential = errors.New("broker credentials are required")
	ErrOrderRejected     = errors.New("order rejected by broker")
)

// Credentials carry the per-account API key material passed to clients.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Client is the normalized broker interface the trading manager dispatches to.
type Client interface {
	Name() string
	GetBalance(ctx context.Context, creds Credentials) ([]types.Balance, error)
	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	PlaceOrder(ctx context.Context, creds Credentials, req types.OrderRequest) (*types.OrderResult, error)
	CancelOrder(ctx context.Context, creds Credentials, symbol, brokerOrderID string) error
	GetOrderStatus(ctx context.Context, creds Credentials, symbol, brokerOrderID string) (*types.OrderResult, error)
	GetOpenPositions(ctx context.Context, creds Credentials) ([]types.BrokerPosition, error)
}

// Registry resolves broker names to clients.
type Registry struct {
	clients map[string]Client
}

// Config carries per-broker base URLs. Demo optionally overrides the
// simulated broker the registry installs.
type Config struct {
	BinanceBaseURL     string
	BybitBaseURL       string
	TradovateBaseURL   string
	NinjaTraderBaseURL string
	Demo               Client
}

// NewRegistry builds the registry with all supported broker clients.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{clients: make(map[string]Client)}
	r.register(NewBinanceClient(cfg.BinanceBaseURL))
	r.register(NewBybitClient(cfg.BybitBaseURL))
	r.register(NewTradovateClient(cfg.TradovateBaseURL))
	r.register(NewNinjaTraderClient(cfg.NinjaTraderBaseURL))
	if cfg.Demo != nil {
		r.register(cfg.Demo)
	} else {
		r.register(NewDemoBroker())
	}
	return r
}

func (r *Registry) register(c Client) {
	r.clients[c.Name()] = c
}

// Get returns the client for the broker name.
func (r *Registry) Get(broker string) (Client, error) {
	c, ok := r.clients[broker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBroker, broker)
	}
	return c, nil
}

// Demo returns the simulated broker.
func (r *Registry) Demo() Client {
	return r.clients[types.BrokerDemo]
}

// restClient bundles the pieces shared by the live broker wrappers: an HTTP
// client with timeouts and an outbound request throttle sized for the broker's
// published API limits.
type restClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newRESTClient(baseURL string, rps float64) restClient {
	return restClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

func (r *restClient) wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
