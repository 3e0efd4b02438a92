package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter implements rate limiting for API endpoints
type RateLimiter struct {
	ipLimiters    map[string]*rate.Limiter
	actorLimiters map[string]*rate.Limiter
	ipMutex       sync.Mutex
	actorMutex    sync.Mutex
	ipRate        rate.Limit
	actorRate     rate.Limit
	ipBurst       int
	actorBurst    int
	cleanupTicker *time.Ticker
	done          chan struct{}
}

// NewRateLimiter creates a new rate limiter. Writes are additionally limited
// per authenticated actor.
func NewRateLimiter(ipRequestsPerSecond, actorWritesPerMinute float64, ipBurst, actorBurst int) *RateLimiter {
	limiter := &RateLimiter{
		ipLimiters:    make(map[string]*rate.Limiter),
		actorLimiters: make(map[string]*rate.Limiter),
		ipRate:        rate.Limit(ipRequestsPerSecond),
		actorRate:     rate.Limit(actorWritesPerMinute / 60),
		ipBurst:       ipBurst,
		actorBurst:    actorBurst,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		done:          make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

// cleanup periodically drops the limiters so the maps do not grow unbounded
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.cleanupTicker.C:
			rl.ipMutex.Lock()
			rl.ipLimiters = make(map[string]*rate.Limiter)
			rl.ipMutex.Unlock()

			rl.actorMutex.Lock()
			rl.actorLimiters = make(map[string]*rate.Limiter)
			rl.actorMutex.Unlock()
		}
	}
}

// Stop stops the rate limiter cleanup
func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
	close(rl.done)
}

func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	rl.ipMutex.Lock()
	defer rl.ipMutex.Unlock()

	limiter, exists := rl.ipLimiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.ipRate, rl.ipBurst)
		rl.ipLimiters[ip] = limiter
	}
	return limiter
}

func (rl *RateLimiter) getActorLimiter(key string) *rate.Limiter {
	rl.actorMutex.Lock()
	defer rl.actorMutex.Unlock()

	limiter, exists := rl.actorLimiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.actorRate, rl.actorBurst)
		rl.actorLimiters[key] = limiter
	}
	return limiter
}

// IPRateLimiterMiddleware limits requests based on IP address
func (rl *RateLimiter) IPRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getIPLimiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ActorRateLimiterMiddleware limits state-changing requests per actor. It
// must run after AuthMiddleware.
func (rl *RateLimiter) ActorRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		actor, ok := ActorFromContext(c)
		if ok && !rl.getActorLimiter(actor.ID.String()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
