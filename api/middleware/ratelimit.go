package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/linkscan/config"
	"github.com/use-agent/linkscan/models"
)

const (
	bucketIdle    = time.Hour
	sweepInterval = 5 * time.Minute
)

// bucket is one caller's token bucket.
type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterSet holds a token bucket per caller identity.
type limiterSet struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

func newLimiterSet(cfg config.RateLimitConfig) *limiterSet {
	return &limiterSet{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   max(cfg.Burst, 1),
	}
}

// wait returns zero when id may proceed now, or how long it must back off.
// A denied request does not consume a token.
func (s *limiterSet) wait(id string, now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[id]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[id] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	d := r.DelayFrom(now)
	if d > 0 {
		r.CancelAt(now)
	}
	return d
}

// sweep drops buckets idle since before now-idle and returns how many.
func (s *limiterSet) sweep(now time.Time, idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, b := range s.buckets {
		if now.Sub(b.seen) > idle {
			delete(s.buckets, id)
			n++
		}
	}
	return n
}

// callerID identifies the caller by API key (set by Auth) or client IP.
// Keys are hashed so the limiter never holds them in the clear.
func callerID(c *gin.Context) string {
	if key, ok := c.Get("api_key"); ok {
		sum := sha256.Sum256([]byte(key.(string)))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + c.ClientIP()
}

// RateLimit limits scan API calls per caller with a token bucket. A
// rejected call gets 429 with Retry-After in whole seconds.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	set := newLimiterSet(cfg)

	go func() {
		for now := range time.Tick(sweepInterval) {
			set.sweep(now, bucketIdle)
		}
	}()

	return func(c *gin.Context) {
		if d := set.wait(callerID(c), time.Now()); d > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
				"too many scan API calls, retry after "+d.Round(time.Second).String())
			return
		}
		c.Next()
	}
}
