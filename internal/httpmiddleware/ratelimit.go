package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// TokenBucket limits requests per key. Buckets live in process memory, so each api
// replica enforces its own budget.
type TokenBucket struct {
	burst  float64
	perSec float64
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewTokenBucket allows burst requests at once and refills perMinute tokens a minute.
// A non-positive burst defaults to perMinute.
func NewTokenBucket(burst, perMinute int) *TokenBucket {
	if burst <= 0 {
		burst = perMinute
	}
	return &TokenBucket{
		burst:   float64(burst),
		perSec:  float64(perMinute) / 60,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// ClientIP charges requests to the caller's address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// GinMiddleware limits per client IP.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return l.GinMiddlewareBy(ClientIP)
}

// GinMiddlewareBy limits per key. An empty key falls back to the client IP. Refused
// requests get 429 with Retry-After in whole seconds.
func (l *TokenBucket) GinMiddlewareBy(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			k = c.ClientIP()
		}
		ok, wait := l.take(k)
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// take spends one token from key's bucket, or reports how long until one is available.
func (l *TokenBucket) take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.perSec)
	b.seen = now

	if b.tokens < 1 {
		if l.perSec <= 0 {
			return false, time.Minute
		}
		return false, time.Duration((1 - b.tokens) / l.perSec * float64(time.Second))
	}
	b.tokens--
	return true, 0
}
