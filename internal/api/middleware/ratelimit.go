package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"compliance-lab/internal/config"
	"compliance-lab/pkg/logger"
)

// WindowLimiter is a shared fixed-window counter, such as the Redis cache
type WindowLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error)
}

// RateLimiter returns middleware that implements rate limiting. With a
// shared limiter every instance counts against the same window; without
// one each process keeps its own token buckets.
func RateLimiter(shared WindowLimiter, cfg config.RateLimitConfig, log *logger.Logger) func(next http.Handler) http.Handler {
	log = log.WithComponent("ratelimit")
	local := newLocalLimiter(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip rate limiting for OPTIONS
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			clientID := getClientID(r)

			var (
				allowed   bool
				remaining int64
				resetTime time.Time
			)
			if shared != nil {
				var err error
				allowed, remaining, resetTime, err = shared.CheckRateLimit(
					r.Context(),
					clientID,
					int64(cfg.RequestsPerMinute),
					time.Minute,
				)
				if err != nil {
					log.Warn().Err(err).Msg("shared rate limit unavailable, using local limiter")
					allowed, remaining, resetTime = local.allow(clientID)
				}
			} else {
				allowed, remaining, resetTime = local.allow(clientID)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				retry := int64(time.Until(resetTime).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientID returns a unique identifier for the client. The limiter runs
// before API key auth, so clients are keyed by host only; the source port
// changes with every connection.
func getClientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP may have replaced RemoteAddr with a bare address
		host = r.RemoteAddr
	}
	return fmt.Sprintf("ip:%s", host)
}

const localIdleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiter keeps one token bucket per client in memory
type localLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &localLimiter{
		limit:     rate.Every(time.Minute / time.Duration(rpm)),
		burst:     burst,
		clients:   make(map[string]*clientBucket),
		lastSweep: time.Now(),
	}
}

func (l *localLimiter) allow(clientID string) (bool, int64, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > localIdleTTL {
		for id, b := range l.clients {
			if now.Sub(b.lastSeen) > localIdleTTL {
				delete(l.clients, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[clientID]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientID] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := int64(tokens)
	if remaining < 0 {
		remaining = 0
	}

	// time until one token is available again
	var wait time.Duration
	if tokens < 1 {
		wait = time.Duration((1 - tokens) / float64(l.limit) * float64(time.Second))
	}
	return allowed, remaining, now.Add(wait)
}
