package middleware

import (
	"net/http"
	"sync"
	"time"

	"dealflow/internal/config"
	appmetrics "dealflow/internal/metrics"

	"github.com/gin-gonic/gin"
)

// bucket refills at rate tokens/second up to capacity.
type bucket struct {
	tokens   float64
	last     time.Time
	rate     float64
	capacity float64
}

func (b *bucket) take(now time.Time) bool {
	if dt := now.Sub(b.last).Seconds(); dt > 0 {
		b.tokens = min(b.capacity, b.tokens+dt*b.rate)
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// limiter keeps one bucket per key and forgets keys idle for longer than
// idleTTL so the map stays bounded by active clients.
type limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     float64
	capacity float64
	idleTTL  time.Duration
	lastGC   time.Time
	now      func() time.Time
}

func newLimiter(rpm, burst int) *limiter {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm
	}
	return &limiter{
		buckets:  make(map[string]*bucket),
		rate:     float64(rpm) / 60.0,
		capacity: float64(burst),
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastGC) > l.idleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.last) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now, rate: l.rate, capacity: l.capacity}
		l.buckets[key] = b
	}
	return b.take(now)
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// rateLimitKey scopes workspace routes per workspace so one tenant cannot
// starve another behind a shared proxy IP. Other routes are keyed by client IP.
func rateLimitKey(c *gin.Context) (key, prefix string) {
	if ws := c.Param("workspace_id"); ws != "" {
		return "ws:" + ws, "workspace"
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip, "global"
}

// RateLimitMiddleware applies cfg.Security.RateLimiting. Whitelisted client
// IPs bypass the limiter; rejections are counted per key prefix.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled || rl.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	whitelist := make(map[string]struct{}, len(rl.WhitelistIPs))
	for _, ip := range rl.WhitelistIPs {
		whitelist[ip] = struct{}{}
	}
	lim := newLimiter(rl.RequestsPerMinute, rl.Burst)

	return func(c *gin.Context) {
		if _, ok := whitelist[c.ClientIP()]; ok {
			c.Next()
			return
		}
		key, prefix := rateLimitKey(c)
		if !lim.allow(key) {
			appmetrics.IncRateLimitDrop(prefix)
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorBody{
				Error:   http.StatusText(http.StatusTooManyRequests),
				Message: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
