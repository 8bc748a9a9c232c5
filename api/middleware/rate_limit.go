package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client key. A bucket refills limit
// tokens per window and bursts up to limit.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		window:   window,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = lim
	}
	return lim
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// RetryAfter is how long until key has a token again.
func (rl *RateLimiter) RetryAfter(key string) time.Duration {
	r := rl.limiter(key).Reserve()
	defer r.Cancel()
	return r.Delay()
}

func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/health/live", "/health/ready", "/metrics":
			c.Next()
			return
		}

		key := c.ClientIP()
		if !rl.Allow(key) {
			retry := int(math.Ceil(rl.RetryAfter(key).Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"kind":        "RateLimited",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}
