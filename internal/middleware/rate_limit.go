package middleware

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/dafibh/jokebox/jokebox-backend/internal/problem"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit is the default number of joke changes per minute per caller
	DefaultRateLimit = 60
	// DefaultBurstSize is the default burst size
	DefaultBurstSize = 10

	sweepInterval = 5 * time.Minute
	idleTTL       = 10 * time.Minute
)

// RateLimiter is a token bucket per caller key
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perMinute int
	burst     int
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter with the default limits
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithConfig(DefaultRateLimit, DefaultBurstSize)
}

// NewRateLimiterWithConfig creates a RateLimiter allowing perMinute requests
// per caller with bursts up to burst. Non-positive values fall back to the
// defaults.
func NewRateLimiterWithConfig(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultRateLimit
	}
	if burst <= 0 {
		burst = DefaultBurstSize
	}
	rl := &RateLimiter{
		buckets:   make(map[string]*bucket),
		perMinute: perMinute,
		burst:     burst,
		stopCh:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Limit returns the configured requests per minute
func (rl *RateLimiter) Limit() int {
	return rl.perMinute
}

// Take spends one token of key's bucket. It returns whether the request may
// proceed, the whole tokens left and how long until the next token.
func (rl *RateLimiter) Take(key string) (ok bool, remaining int, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60), rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay
	}
	return true, int(math.Max(0, math.Floor(b.limiter.TokensAt(now)))), 0
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, b := range rl.buckets {
				if now.Sub(b.lastSeen) > idleTTL {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the background sweep. It may be called more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// callerKey picks the most specific identity available: the token subject
// when EditorAuth ran, then X-Client-ID, then the remote address.
func callerKey(c echo.Context) string {
	if editor := GetEditor(c); editor != "" {
		return "editor:" + editor
	}
	if id := GetClientID(c); id != uuid.Nil {
		return "client:" + id.String()
	}
	return "ip:" + c.RealIP()
}

// RateLimitMiddleware throttles joke changes per caller and reports the
// budget in X-RateLimit-* headers.
func RateLimitMiddleware(rl *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := callerKey(c)
			ok, remaining, retryAfter := rl.Take(key)

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit()))
			header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				header.Set("Retry-After", strconv.Itoa(seconds))
				log.Warn().
					Str("caller", key).
					Int("retry_after", seconds).
					Msg("Rate limit exceeded")
				return problem.TooManyRequests(c, fmt.Sprintf("Too many changes. Please retry after %d seconds.", seconds))
			}
			return next(c)
		}
	}
}
