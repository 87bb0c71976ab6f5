package devserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hummingbird-labs/hummingbird/internal/metrics"
)

// RateLimitConfig holds the per-client limits.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// CleanupInterval is how often idle entries are dropped.
	CleanupInterval time.Duration
	// EntryTTL is how long an entry is kept after its last request.
	EntryTTL time.Duration
}

// DefaultRateLimitConfig returns 10 req/s with bursts of 20.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
		EntryTTL:          10 * time.Minute,
	}
}

type rateLimitEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter limits requests per client IP. It is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimitEntry
	config   RateLimitConfig
	metrics  *metrics.Metrics

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewRateLimiter creates a limiter and starts its cleanup loop.
func NewRateLimiter(config RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.EntryTTL <= 0 {
		config.EntryTTL = def.EntryTTL
	}
	rl := &RateLimiter{
		limiters:    make(map[string]*rateLimitEntry),
		config:      config,
		metrics:     m,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Close stops the cleanup loop.
func (rl *RateLimiter) Close() {
	close(rl.stopCleanup)
	<-rl.cleanupDone
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &rateLimitEntry{
			limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize),
		}
		rl.limiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter.Allow()
}

// Middleware rejects requests over the limit with 429. It keys on
// RemoteAddr, which chi's RealIP middleware has already resolved.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			rl.metrics.DevServerRateLimit()
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) cleanupLoop() {
	defer close(rl.cleanupDone)

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.config.EntryTTL)
	for ip, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
