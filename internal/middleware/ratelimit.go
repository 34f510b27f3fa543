package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/guttosm/dsepulse/internal/domain/dto"
)

// ipLimiter tracks one token bucket per client IP.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits each client IP to rps requests per second with the
// given burst. Idle client entries are evicted after ten minutes so the map
// does not grow unbounded.
//
// NOTE: in-memory only; multi-instance deployments need a shared store.
//
// Response when limit exceeded: 429 with the standard error envelope.
func RateLimiter(rps float64, burst int) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*ipLimiter)
	)

	const idleEviction = 10 * time.Minute

	lookup := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if c, ok := clients[ip]; ok {
			c.lastSeen = now
			return c.limiter
		}

		for addr, c := range clients {
			if now.Sub(c.lastSeen) > idleEviction {
				delete(clients, addr)
			}
		}

		c := &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst), lastSeen: now}
		clients[ip] = c
		return c.limiter
	}

	return func(c *gin.Context) {
		if !lookup(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponse("rate limit exceeded", nil))
			return
		}
		c.Next()
	}
}
