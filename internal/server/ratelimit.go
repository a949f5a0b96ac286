package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdle is how long a user's bucket survives without requests.
const limiterIdle = 10 * time.Minute

// RateLimiter is a token bucket per key, used to throttle manual syncs per
// user. Idle buckets are pruned lazily on access.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*userLimiter
	every     time.Duration
	burst     int
	lastPrune time.Time
	now       func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows burst requests at once, then one per every.
// A non-positive every disables limiting.
func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*userLimiter),
		every:    every,
		burst:    burst,
		now:      time.Now,
	}
}

// Reserve takes a token for key. When none is available it returns false
// and how long until one is.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	if rl == nil || rl.every <= 0 {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) > limiterIdle {
		for k, l := range rl.limiters {
			if now.Sub(l.lastSeen) > limiterIdle {
				delete(rl.limiters, k)
			}
		}
		rl.lastPrune = now
	}

	l, ok := rl.limiters[key]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(rate.Every(rl.every), rl.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = now

	r := l.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// rateLimit rejects a user's request with 429 once their bucket is empty.
func (s *Server) rateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := rl.Reserve(currentUser(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many sync requests"})
			return
		}
		c.Next()
	}
}
