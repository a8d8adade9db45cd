package security

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EndpointClass groups routes under a shared request budget.
type EndpointClass string

const (
	ClassAuth    EndpointClass = "auth"
	ClassTrading EndpointClass = "trading"
	ClassMarket  EndpointClass = "market"
	ClassDefault EndpointClass = "default"
)

// Limit is the request budget for one endpoint class.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits mirrors the tiered budgets used on the API: auth is tight,
// trading moderate, read-heavy market data generous.
var DefaultLimits = map[EndpointClass]Limit{
	ClassAuth:    {Requests: 10, Window: time.Minute},
	ClassTrading: {Requests: 100, Window: time.Minute},
	ClassMarket:  {Requests: 300, Window: time.Minute},
	ClassDefault: {Requests: 120, Window: time.Minute},
}

// Escalating block durations for repeat offenders. The first violation blocks
// for blockSteps[0], the next for blockSteps[1], and so on.
var blockSteps = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

type clientWindow struct {
	hits       []time.Time
	violations int
	blockedTo  time.Time
	lastSeen   time.Time
}

// RateLimiter is an in-memory sliding-window limiter keyed by client and
// endpoint class, with progressive blocking on repeated violations. State is
// process-local and reaped periodically.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[EndpointClass]Limit
	clients map[string]*clientWindow
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Passing nil limits uses DefaultLimits.
func NewRateLimiter(limits map[EndpointClass]Limit) *RateLimiter {
	if limits == nil {
		limits = DefaultLimits
	}
	return &RateLimiter{
		limits:  limits,
		clients: make(map[string]*clientWindow),
		now:     time.Now,
	}
}

// Allow reports whether the client may make a request against the given class.
// When denied, retryAfter indicates how long the client should wait.
func (r *RateLimiter) Allow(clientID string, class EndpointClass) (allowed bool, retryAfter time.Duration) {
	limit, ok := r.limits[class]
	if !ok {
		limit = r.limits[ClassDefault]
	}
	if limit.Requests <= 0 {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := clientID + ":" + string(class)
	cw, ok := r.clients[key]
	if !ok {
		cw = &clientWindow{}
		r.clients[key] = cw
	}
	cw.lastSeen = now

	if now.Before(cw.blockedTo) {
		return false, cw.blockedTo.Sub(now)
	}

	// Drop hits that fell out of the window.
	cutoff := now.Add(-limit.Window)
	kept := cw.hits[:0]
	for _, h := range cw.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	cw.hits = kept

	if len(cw.hits) >= limit.Requests {
		step := cw.violations
		if step >= len(blockSteps) {
			step = len(blockSteps) - 1
		}
		cw.violations++
		cw.blockedTo = now.Add(blockSteps[step])

		log.Warn().
			Str("client_id", clientID).
			Str("endpoint_class", string(class)).
			Int("violations", cw.violations).
			Dur("blocked_for", blockSteps[step]).
			Msg("rate limit exceeded, client blocked")

		return false, blockSteps[step]
	}

	cw.hits = append(cw.hits, now)
	return true, 0
}

// StartCleanup reaps idle client windows until stop is closed.
func (r *RateLimiter) StartCleanup(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, cw := range r.clients {
		if now.Sub(cw.lastSeen) > 10*time.Minute && now.After(cw.blockedTo) {
			delete(r.clients, key)
		}
	}
}

// ClassifyPath maps a request path onto its endpoint class.
func ClassifyPath(path string) EndpointClass {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth"):
		return ClassAuth
	case strings.HasPrefix(path, "/api/v1/trading"), strings.HasPrefix(path, "/api/v1/accounts"):
		return ClassTrading
	case strings.HasPrefix(path, "/api/v1/market"):
		return ClassMarket
	default:
		return ClassDefault
	}
}
