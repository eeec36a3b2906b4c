package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTTL         = 10 * time.Minute
)

type RateLimitMetrics interface {
	RecordRateLimited()
}

type actorLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per authenticated actor.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	metrics RateLimitMetrics

	mu       sync.Mutex
	limiters map[int64]*actorLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter allows perMinute requests per actor, with a burst of the
// same size. It starts a cleanup goroutine; call Stop to end it.
func NewRateLimiter(perMinute int, m RateLimitMetrics) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	rl := &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		metrics:  m,
		limiters: make(map[int64]*actorLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware must run after authenticate.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r.Context())
		if !rl.get(actor.ID).Allow() {
			if rl.metrics != nil {
				rl.metrics.RecordRateLimited()
			}
			retry := max(1, int(1/float64(rl.limit)))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Count is the number of tracked actors.
func (rl *RateLimiter) Count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) get(actorID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	al, ok := rl.limiters[actorID]
	if !ok {
		al = &actorLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[actorID] = al
	}
	al.lastAccess = time.Now()
	return al.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-limiterIdleTTL))
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(idleBefore time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, al := range rl.limiters {
		if al.lastAccess.Before(idleBefore) {
			delete(rl.limiters, id)
		}
	}
}
