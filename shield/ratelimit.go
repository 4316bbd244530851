package shield

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Rule is a fixed-window limit for one endpoint.
type Rule struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter limits requests per client IP and endpoint. Endpoints are
// keyed "METHOD /path"; endpoints without a rule are not limited.
type RateLimiter struct {
	rules  map[string]Rule
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	sweeps  int
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rl *RateLimiter) {
		if l != nil {
			rl.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(rl *RateLimiter) { rl.now = now }
}

// NewRateLimiter creates a limiter for rules. Rules with a non-positive
// limit or window are ignored.
func NewRateLimiter(rules map[string]Rule, opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		rules:   make(map[string]Rule, len(rules)),
		logger:  slog.Default(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for endpoint, r := range rules {
		if r.MaxRequests > 0 && r.Window > 0 {
			rl.rules[endpoint] = r
		}
	}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

// Allow reports whether ip may call endpoint now, counting the call. The
// second result is the time left before the window resets.
func (rl *RateLimiter) Allow(ip, endpoint string) (bool, time.Duration) {
	rule, ok := rl.rules[endpoint]
	if !ok {
		return true, 0
	}
	now := rl.now()
	key := ip + "|" + endpoint

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweep(now)

	b, ok := rl.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		rl.buckets[key] = &bucket{count: 1, resetAt: now.Add(rule.Window)}
		return true, 0
	}
	if b.count >= rule.MaxRequests {
		return false, b.resetAt.Sub(now)
	}
	b.count++
	return true, 0
}

// sweep drops expired buckets every 256 calls. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	rl.sweeps++
	if rl.sweeps%256 != 0 {
		return
	}
	for key, b := range rl.buckets {
		if !now.Before(b.resetAt) {
			delete(rl.buckets, key)
		}
	}
}

// Middleware answers 429 with a JSON error and Retry-After once a client
// exceeds the rule of the requested endpoint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + r.URL.Path
		ip := ExtractIP(r)
		ok, wait := rl.Allow(ip, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.Warn("shield: rate limited", "ip", ip, "endpoint", endpoint)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
