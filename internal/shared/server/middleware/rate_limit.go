package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/server/respond"
)

// RateLimitRule is a token bucket: Rate tokens per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// PerMinute builds a rule allowing perMinute requests a minute with the given burst.
func PerMinute(perMinute float64, burst int) RateLimitRule {
	return RateLimitRule{Rate: perMinute / 60.0, Burst: burst}
}

// RateLimitConfig limits one route per client IP. Name tags rejected
// requests in the access log.
type RateLimitConfig struct {
	Name    string
	Rule    RateLimitRule
	Limiter *RateLimiter
}

// RateLimiter holds token buckets keyed by client.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	tokens float64
	last   time.Time
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		buckets: make(map[string]*rateBucket),
		now:     now,
	}
}

// RateLimit rejects requests over the rule with 429 and a Retry-After header.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	return func(c *gin.Context) {
		allowed, retryAfter := cfg.Limiter.Allow(cfg.Name+"|"+c.ClientIP(), cfg.Rule)
		if allowed {
			c.Next()
			return
		}
		retryAfterMs := retryAfter.Milliseconds()
		if retryAfterMs <= 0 {
			retryAfterMs = 1000
		}
		c.Header("Retry-After", strconv.FormatInt((retryAfterMs+999)/1000, 10))
		c.Set("rateLimited", cfg.Name)
		respond.Error(c, http.StatusTooManyRequests, "Too many requests", gin.H{"retryAfterMs": retryAfterMs})
	}
}

// Allow takes a token from key's bucket. When empty it reports how long
// until the next token.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &rateBucket{tokens: float64(rule.Burst), last: now}
		l.buckets[key] = bucket
	}
	if elapsed := now.Sub(bucket.last).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(float64(rule.Burst), bucket.tokens+elapsed*rule.Rate)
		bucket.last = now
	}
	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, 0
	}
	wait := (1 - bucket.tokens) / rule.Rate
	return false, time.Duration(math.Ceil(wait*1000)) * time.Millisecond
}
