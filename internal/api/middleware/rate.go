package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how fast a single client may hit the ingress.
// Window sockets are long lived, so this mostly guards asset and upgrade bursts.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// Idle is how long an unused client limiter is kept.
	Idle time.Duration
}

// DefaultRateLimitConfig returns the ingress defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 200,
		Burst:             400,
		Idle:              10 * time.Minute,
	}
}

// RateLimit creates a per-client rate limiting middleware. A zero rate disables it.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Idle <= 0 {
		cfg.Idle = 10 * time.Minute
	}
	limiters := cache.New(cfg.Idle, cfg.Idle)

	return func(c *gin.Context) {
		key := c.ClientIP()

		var limiter *rate.Limiter
		if v, ok := limiters.Get(key); ok {
			limiter = v.(*rate.Limiter)
		} else {
			limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
			if err := limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
				// another request created it first
				if v, ok := limiters.Get(key); ok {
					limiter = v.(*rate.Limiter)
				}
			}
		}
		// sliding expiry
		limiters.Set(key, limiter, cache.DefaultExpiration)

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
