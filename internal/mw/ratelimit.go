package mw

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

// clientLimiters hands out one token bucket per client. Buckets of clients
// that went quiet are evicted by the cache janitor.
type clientLimiters struct {
	buckets *cache.Cache
	r       rate.Limit
	b       int
}

func newClientLimiters(r rate.Limit, b int) *clientLimiters {
	return &clientLimiters{
		buckets: cache.New(limiterIdleTTL, limiterIdleTTL),
		r:       r,
		b:       b,
	}
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.buckets.Set(key, lim, cache.DefaultExpiration)
		return lim
	}
	lim := rate.NewLimiter(l.r, l.b)
	if err := l.buckets.Add(key, lim, cache.DefaultExpiration); err != nil {
		// A concurrent request inserted first; share its bucket.
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// RateLimiter is a middleware for per-client rate limiting. When ipHeader is
// set (e.g. behind a proxy) its first value identifies the client instead of
// the connection address.
func RateLimiter(r rate.Limit, b int, ipHeader string) gin.HandlerFunc {
	limiters := newClientLimiters(r, b)
	return func(c *gin.Context) {
		if !limiters.get(clientKey(c, ipHeader)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context, ipHeader string) string {
	if ipHeader != "" {
		if v := strings.TrimSpace(strings.Split(c.GetHeader(ipHeader), ",")[0]); v != "" {
			return v
		}
	}
	return c.ClientIP()
}
