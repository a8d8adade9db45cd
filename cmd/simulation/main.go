package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

const (
	minOrders     = 10
	maxOrders     = 60
	numWorkers    = 4
	serverAddress = "http://localhost:8080"
)

var (
	symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "ES", "NQ"}
	sides   = []string{"BUY", "SELL"}
)

// init configures the logger for the simulation with pretty printing.
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint.
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes min, max, mean, median, p95 and p99 latencies.
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient drives the trading API end to end: it registers a user,
// links a demo account and hammers the order endpoints.
type simulationClient struct {
	baseURL   string
	authToken string
	accountID string
	client    *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"register":  {name: "Register"},
			"login":     {name: "Login"},
			"account":   {name: "Create Account"},
			"place":     {name: "Place Order"},
			"get":       {name: "Get Order"},
			"cancel":    {name: "Cancel Order"},
			"portfolio": {name: "Portfolio Summary"},
		},
	}

	email := fmt.Sprintf("sim-%s@quantdesk.dev", uuid.New().String()[:8])
	password := "simulation-pass-1"

	if err := sc.register(email, password); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	if err := sc.login(email, password); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	if err := sc.createDemoAccount(); err != nil {
		return nil, fmt.Errorf("failed to create demo account: %w", err)
	}

	return sc, nil
}

func (sc *simulationClient) track(route string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats[route].addDuration(time.Since(start))
	if failed {
		sc.stats[route].failures++
	}
}

func (sc *simulationClient) register(email, password string) error {
	start := time.Now()
	payload := map[string]string{"email": email, "password": password, "name": "Simulation User"}

	_, err := sc.post("/api/v1/auth/register", payload, "")
	sc.track("register", start, err != nil)
	return err
}

func (sc *simulationClient) login(email, password string) error {
	start := time.Now()
	payload := map[string]string{"email": email, "password": password}

	var data struct {
		Token string `json:"token"`
	}
	err := sc.postInto("/api/v1/auth/login", payload, &data, "")
	sc.track("login", start, err != nil)
	if err != nil {
		return err
	}
	if data.Token == "" {
		return fmt.Errorf("no token in login response")
	}
	sc.authToken = data.Token
	return nil
}

func (sc *simulationClient) createDemoAccount() error {
	start := time.Now()
	payload := map[string]interface{}{
		"broker":    types.BrokerDemo,
		"label":     "Simulation Demo Account",
		"demo_mode": true,
	}

	var data struct {
		AccountID string `json:"account_id"`
	}
	err := sc.postInto("/api/v1/accounts", payload, &data, "")
	sc.track("account", start, err != nil)
	if err != nil {
		return err
	}
	if data.AccountID == "" {
		return fmt.Errorf("no account ID in response")
	}
	sc.accountID = data.AccountID
	return nil
}

// placeOrder submits a random demo order and returns its ID.
func (sc *simulationClient) placeOrder() (string, error) {
	start := time.Now()

	payload := map[string]interface{}{
		"account_id": sc.accountID,
		"symbol":     symbols[rand.Intn(len(symbols))],
		"side":       sides[rand.Intn(len(sides))],
		"order_type": "MARKET",
		"quantity":   float64(rand.Intn(10)+1) / 10.0,
	}

	var data struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	err := sc.postInto("/api/v1/trading/orders", payload, &data, uuid.New().String())
	sc.track("place", start, err != nil)
	if err != nil {
		return "", err
	}
	if data.OrderID == "" {
		return "", fmt.Errorf("no order ID in response")
	}
	return data.OrderID, nil
}

func (sc *simulationClient) getOrder(orderID string) (*types.Order, error) {
	start := time.Now()

	var order types.Order
	err := sc.getInto("/api/v1/trading/orders/"+orderID, &order)
	sc.track("get", start, err != nil)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (sc *simulationClient) cancelOrder(orderID string) error {
	start := time.Now()

	req, err := http.NewRequest(http.MethodDelete, sc.baseURL+"/api/v1/trading/orders/"+orderID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	resp, err := sc.client.Do(req)
	failed := err != nil
	if resp != nil {
		// Conflicts are expected: most demo orders fill immediately.
		failed = failed || (resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict)
		resp.Body.Close()
	}
	sc.track("cancel", start, failed)
	return err
}

func (sc *simulationClient) portfolio() error {
	start := time.Now()
	var data json.RawMessage
	err := sc.getInto("/api/v1/trading/portfolio", &data)
	sc.track("portfolio", start, err != nil)
	return err
}

func (sc *simulationClient) post(path string, payload interface{}, idempotencyKey string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, sc.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("POST %s failed with status %d: %s", path, resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (sc *simulationClient) postInto(path string, payload interface{}, out interface{}, idempotencyKey string) error {
	respBody, err := sc.post(path, payload, idempotencyKey)
	if err != nil {
		return err
	}
	return decodeEnvelope(respBody, out)
}

func (sc *simulationClient) getInto(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, sc.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s failed with status %d: %s", path, resp.StatusCode, respBody)
	}
	return decodeEnvelope(respBody, out)
}

func decodeEnvelope(respBody []byte, out interface{}) error {
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, respBody)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

// main runs the simulated trading session and prints latency statistics.
func main() {
	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulation client")
	}

	numOrders := rand.Intn(maxOrders-minOrders+1) + minOrders
	log.Info().
		Int("orders", numOrders).
		Int("workers", numWorkers).
		Str("account_id", sc.accountID).
		Msg("starting trading simulation")

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				orderID, err := sc.placeOrder()
				if err != nil {
					log.Warn().Err(err).Msg("order placement failed")
					continue
				}

				order, err := sc.getOrder(orderID)
				if err != nil {
					log.Warn().Err(err).Str("order_id", orderID).Msg("order lookup failed")
					continue
				}

				if order.Status == types.OrderStatusPending {
					if err := sc.cancelOrder(orderID); err != nil {
						log.Warn().Err(err).Str("order_id", orderID).Msg("cancel failed")
					}
				}
			}
		}()
	}

	for i := 0; i < numOrders; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := sc.portfolio(); err != nil {
		log.Warn().Err(err).Msg("portfolio fetch failed")
	}

	printStats(sc)
}

// printStats renders the latency table for each exercised route.
func printStats(sc *simulationClient) {
	fmt.Println("\n=== Simulation Results ===")
	for _, key := range []string{"register", "login", "account", "place", "get", "cancel", "portfolio"} {
		rs := sc.stats[key]
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("\n%s (%d calls, %d failures)\n", rs.name, rs.totalCalls, rs.failures)
		fmt.Printf("  min=%v max=%v mean=%v median=%v p95=%v p99=%v\n", min, max, mean, median, p95, p99)
	}
}
