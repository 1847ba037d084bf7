package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/streamcatch/streamcatch/internal/httputil"
)

const (
	cleanupInterval = 5 * time.Minute
	visitorExpiry   = 10 * time.Minute
	retryAfter      = "10"
	// MsgTooManyRequests is shown when a client exceeds its budget.
	MsgTooManyRequests = "Too many requests, please try again shortly"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client IP.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	clock    clockwork.Clock
	stop     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	return newLimiter(requestsPerSecond, burst, clockwork.NewRealClock())
}

func newLimiter(requestsPerSecond float64, burst int, clock clockwork.Clock) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
		clock:    clock,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *Limiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *Limiter) cleanupLoop() {
	ticker := l.clock.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.Chan():
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorExpiry {
			delete(l.visitors, ip)
		}
	}
}

// Stop ends the background cleanup.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(httputil.ClientIP(r)) {
			w.Header().Set("Retry-After", retryAfter)
			if httputil.WantsJSON(r) {
				httputil.WriteError(w, http.StatusTooManyRequests, MsgTooManyRequests)
				return
			}
			http.Error(w, MsgTooManyRequests, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
