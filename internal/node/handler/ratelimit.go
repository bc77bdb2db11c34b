package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiters tracks one token bucket per client IP. Entries idle for
// more than 10 minutes are evicted by a background sweep.
type clientLimiters struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	seen  map[string]*clientEntry
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	cl := &clientLimiters{
		rps:   rate.Limit(rps),
		burst: burst,
		seen:  make(map[string]*clientEntry),
	}
	go cl.sweep()
	return cl
}

func (cl *clientLimiters) get(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	e, ok := cl.seen[ip]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.seen[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (cl *clientLimiters) sweep() {
	for {
		time.Sleep(5 * time.Minute)
		cl.mu.Lock()
		for ip, e := range cl.seen {
			if time.Since(e.lastSeen) > 10*time.Minute {
				delete(cl.seen, ip)
			}
		}
		cl.mu.Unlock()
	}
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size.
func RateLimiter(rps float64, burst int) gin.HandlerFunc {
	limiters := newClientLimiters(rps, burst)

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
