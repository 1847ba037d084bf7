package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestLimiter(t *testing.T, rps float64, burst int) (*Limiter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	l := newLimiter(rps, burst, clock)
	t.Cleanup(l.Stop)
	return l, clock
}

func TestNewLimiterAllowsFirstRequest(t *testing.T) {
	limiter, _ := newTestLimiter(t, 10, 5)

	if !limiter.allow("192.168.1.1") {
		t.Error("expected first request from new IP to be allowed")
	}
}

func TestRequestsWithinBurstAreAllowed(t *testing.T) {
	burst := 5
	limiter, _ := newTestLimiter(t, 1, burst)

	for i := 0; i < burst; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d within burst of %d should be allowed", i+1, burst)
		}
	}
}

func TestRequestsExceedingBurstAreDenied(t *testing.T) {
	burst := 3
	limiter, _ := newTestLimiter(t, 1, burst)

	for i := 0; i < burst; i++ {
		limiter.allow("192.168.1.1")
	}

	if limiter.allow("192.168.1.1") {
		t.Error("request exceeding burst should be denied")
	}
}

func TestTokensReplenishOverTime(t *testing.T) {
	limiter, clock := newTestLimiter(t, 10, 2)

	limiter.allow("192.168.1.1")
	limiter.allow("192.168.1.1")
	if limiter.allow("192.168.1.1") {
		t.Fatal("expected request to be denied after exhausting burst")
	}

	clock.Advance(150 * time.Millisecond)

	if !limiter.allow("192.168.1.1") {
		t.Error("expected request to be allowed after tokens replenish")
	}
}

func TestDifferentIPsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 1)

	limiter.allow("192.168.1.1")
	if limiter.allow("192.168.1.1") {
		t.Error("expected second request from first IP to be denied")
	}
	if !limiter.allow("10.0.0.1") {
		t.Error("expected first request from another IP to be allowed")
	}
}

func TestCleanupDropsIdleVisitors(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1, 1)
	limiter.allow("192.168.1.1")

	clock.Advance(visitorExpiry + time.Second)
	limiter.allow("10.0.0.1")
	limiter.cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.visitors["192.168.1.1"]; ok {
		t.Error("expected idle visitor to be removed")
	}
	if _, ok := limiter.visitors["10.0.0.1"]; !ok {
		t.Error("expected recent visitor to be kept")
	}
}

func TestMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(accept string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := request(""); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	rec := request("")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "10" {
		t.Errorf("expected Retry-After 10, got %q", rec.Header().Get("Retry-After"))
	}
	if !strings.Contains(rec.Body.String(), MsgTooManyRequests) {
		t.Error("expected message in body")
	}

	rec = request("application/json")
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON body for API clients, got %q", ct)
	}
}
