package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Squirrel-Richard/myanus-platform/internal/metrics"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateKey names one counter: the limited route and the caller, either
// "profile:<id>" or "ip:<addr>".
type RateKey struct {
	Route   string
	Subject string
}

func (k RateKey) String() string { return k.Route + ":" + k.Subject }

// RateLimiter counts requests per key in fixed windows aligned to the epoch,
// so every replica agrees on where a window starts and ends.
type RateLimiter interface {
	Allow(key RateKey, limit int, window time.Duration) RateDecision
	Close()
}

type RateDecision struct {
	Allowed   bool
	Count     int
	WindowEnd time.Time
}

// windowBucket returns the index of the window containing now and the time
// that window closes.
func windowBucket(now time.Time, window time.Duration) (int64, time.Time) {
	if window <= 0 {
		window = time.Minute
	}
	idx := now.UnixNano() / int64(window)
	return idx, time.Unix(0, (idx+1)*int64(window))
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	counts  map[RateKey]windowCount
	stopCh  chan struct{}
	stopped sync.Once
}

type windowCount struct {
	bucket int64
	hits   int
	closes time.Time
}

// NewMemoryRateLimiter returns a process-local limiter. Used when no redis is configured.
func NewMemoryRateLimiter() RateLimiter {
	return newMemoryRateLimiter(time.Now)
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	rl := &memoryRateLimiter{
		now:    now,
		counts: make(map[RateKey]windowCount),
		stopCh: make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryRateLimiter) Allow(key RateKey, limit int, window time.Duration) RateDecision {
	if limit <= 0 {
		return RateDecision{Allowed: true}
	}
	bucket, closes := windowBucket(rl.now(), window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	c := rl.counts[key]
	if c.bucket != bucket || c.hits == 0 {
		c = windowCount{bucket: bucket, closes: closes}
	}
	c.hits++
	rl.counts[key] = c
	return RateDecision{Allowed: c.hits <= limit, Count: c.hits, WindowEnd: c.closes}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

// sweep drops counters whose window has closed.
func (rl *memoryRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.counts {
		if !now.Before(c.closes) {
			delete(rl.counts, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.stopped.Do(func() { close(rl.stopCh) })
}

// RateLimit limits requests to route per profile, falling back to the client
// IP for unauthenticated routes. A nil limiter or limit <= 0 disables it.
func RateLimit(limiter RateLimiter, route string, limit int, window time.Duration, rec *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			decision := limiter.Allow(rateKey(route, r), limit, window)
			setRateHeaders(w, limit, decision)
			if !decision.Allowed {
				rec.RateLimitHit(route)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.WindowEnd)))
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(route string, r *http.Request) RateKey {
	if p := ProfileFromCtx(r.Context()); p != nil {
		return RateKey{Route: route, Subject: "profile:" + p.ID.String()}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return RateKey{Route: route, Subject: "ip:" + host}
}

func setRateHeaders(w http.ResponseWriter, limit int, d RateDecision) {
	remaining := max(limit-d.Count, 0)
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !d.WindowEnd.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.WindowEnd.Unix(), 10))
	}
}

func retryAfterSeconds(windowEnd time.Time) int {
	if windowEnd.IsZero() {
		return 1
	}
	secs := int(time.Until(windowEnd).Seconds() + 0.999)
	return max(secs, 1)
}
