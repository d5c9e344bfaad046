package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// bookRequest builds a request as the mux would hand it to a book route.
func bookRequest(method, bookID, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, "/api/books/"+bookID+"/search", nil)
	req.SetPathValue("bookID", bookID)
	req.RemoteAddr = remoteAddr
	return req
}

// TestRateLimit_AllowsUnderLimit verifies that requests within the burst
// capacity are passed through to the downstream handler.
func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter("query", scopeClientBook, 100, 5, nil)
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, bookRequest(http.MethodGet, "b1", "127.0.0.1:12345"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

// TestRateLimit_RetryAfterFromDelay verifies that a 429 carries the whole
// seconds until the next token and bumps the rejection counter.
func TestRateLimit_RetryAfterFromDelay(t *testing.T) {
	t.Parallel()

	rejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "rejected"})
	// One token every 30s, as for reindex.
	rl, stop := newRateLimiter("reindex", scopeBook, 1/30.0, 1, rejected)
	defer stop()
	h := rl.middleware(okHandler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, bookRequest(http.MethodPost, "b1", "10.0.0.2:1234"))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, bookRequest(http.MethodPost, "b1", "10.0.0.2:1234"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 29 || secs > 30 {
		t.Errorf("Retry-After = %q, want about 30", w.Header().Get("Retry-After"))
	}

	var m dto.Metric
	if err := rejected.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("rejections = %v, want 1", got)
	}
}

// TestRateLimit_RejectedDoesNotConsume verifies that a rejected request does
// not push the next token further away.
func TestRateLimit_RejectedDoesNotConsume(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter("query", scopeClientBook, 20, 1, nil)
	defer stop()
	h := rl.middleware(okHandler)

	h.ServeHTTP(httptest.NewRecorder(), bookRequest(http.MethodGet, "b1", "10.0.0.3:1"))
	for range 5 {
		h.ServeHTTP(httptest.NewRecorder(), bookRequest(http.MethodGet, "b1", "10.0.0.3:1"))
	}

	time.Sleep(80 * time.Millisecond)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, bookRequest(http.MethodGet, "b1", "10.0.0.3:1"))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 once a token refilled, got %d", w.Code)
	}
}

// TestRateLimit_ClientBookIsolation verifies that query buckets are separate
// per client and per book.
func TestRateLimit_ClientBookIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter("query", scopeClientBook, 0.001, 1, nil)
	defer stop()
	h := rl.middleware(okHandler)

	// Exhaust client A on book b1.
	for range 3 {
		h.ServeHTTP(httptest.NewRecorder(), bookRequest(http.MethodGet, "b1", "192.168.1.1:1111"))
	}

	for _, tc := range []struct{ book, addr string }{
		{"b1", "192.168.1.2:2222"},
		{"b2", "192.168.1.1:1111"},
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, bookRequest(http.MethodGet, tc.book, tc.addr))
		if w.Code != http.StatusOK {
			t.Errorf("book=%s addr=%s: expected 200, got %d", tc.book, tc.addr, w.Code)
		}
	}
}

// TestRateLimit_BookScopeSharedAcrossClients verifies that the reindex bucket
// is shared by every client of a book.
func TestRateLimit_BookScopeSharedAcrossClients(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter("reindex", scopeBook, 0.001, 1, nil)
	defer stop()
	h := rl.middleware(okHandler)

	h.ServeHTTP(httptest.NewRecorder(), bookRequest(http.MethodPost, "b1", "10.0.0.1:1"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, bookRequest(http.MethodPost, "b1", "10.0.0.9:9"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second client, same book: expected 429, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, bookRequest(http.MethodPost, "b2", "10.0.0.9:9"))
	if w.Code != http.StatusOK {
		t.Errorf("other book: expected 200, got %d", w.Code)
	}
}

// TestRateLimit_Evict verifies that idle buckets are dropped.
func TestRateLimit_Evict(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter("query", scopeClientBook, 1, 1, nil)
	defer stop()
	rl.limiterFor("a|b1")
	rl.evict(time.Now().Add(time.Second))

	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("expected no buckets after eviction, got %d", n)
	}
}

// TestClientIP verifies that clientIP strips the port from RemoteAddr.
func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		got := clientIP(req)
		if got != tc.wantIP {
			t.Errorf("remoteAddr=%q: expected %q, got %q", tc.remoteAddr, tc.wantIP, got)
		}
	}
}
