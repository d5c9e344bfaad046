package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/plotline-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained query rate per client and book
	// (requests/second) when none is configured.
	defaultRateLimit = 10

	// defaultRateBurst is the query burst per client and book.
	defaultRateBurst = 20

	// defaultReindexInterval is the minimum spacing between reindexes of one
	// book, whichever client asks.
	defaultReindexInterval = 30 * time.Second

	// bucketIdleTTL is how long an unused bucket is kept before eviction.
	bucketIdleTTL = 5 * time.Minute
)

// limitScope decides which requests share a token bucket.
type limitScope int

const (
	// scopeClientBook gives each (client IP, book) pair its own bucket.
	scopeClientBook limitScope = iota
	// scopeBook shares one bucket per book across all clients.
	scopeBook
)

// bucket is one token bucket and the last time it was drawn from.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter is a token-bucket middleware for book routes. Buckets are keyed
// by scope and evicted after bucketIdleTTL without traffic.
type rateLimiter struct {
	// tier labels log lines and the rejection counter ("query", "reindex").
	tier  string
	scope limitScope
	rps   rate.Limit
	burst int

	// rejected counts 429 responses; nil disables counting.
	rejected prometheus.Counter

	// mu guards buckets.
	mu      sync.Mutex
	buckets map[string]*bucket
}

// newRateLimiter constructs a rateLimiter and starts its eviction goroutine,
// which exits when the returned stop function is called.
func newRateLimiter(tier string, scope limitScope, rps float64, burst int, rejected prometheus.Counter) (*rateLimiter, func()) {
	rl := &rateLimiter{
		tier:     tier,
		scope:    scope,
		rps:      rate.Limit(rps),
		burst:    burst,
		rejected: rejected,
		buckets:  make(map[string]*bucket),
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// key returns the bucket key for r. The book id comes from the route pattern,
// so the middleware must wrap a handler registered on the mux.
func (rl *rateLimiter) key(r *http.Request) string {
	book := r.PathValue("bookID")
	if rl.scope == scopeBook {
		return book
	}
	return clientIP(r) + "|" + book
}

func (rl *rateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict(time.Now().Add(-bucketIdleTTL))
		}
	}
}

// evict drops buckets last used before cutoff.
func (rl *rateLimiter) evict(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for k, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// middleware rejects requests whose bucket is empty with 429 and a
// Retry-After header holding the whole seconds until a token is available.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := rl.limiterFor(rl.key(r)).Reserve()
		if res.OK() && res.Delay() == 0 {
			next.ServeHTTP(w, r)
			return
		}

		retry := 60
		if res.OK() {
			retry = max(int(math.Ceil(res.Delay().Seconds())), 1)
			res.Cancel()
		}
		if rl.rejected != nil {
			rl.rejected.Inc()
		}
		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("tier", rl.tier),
			slog.String("ip", clientIP(r)),
			slog.String("book_id", r.PathValue("bookID")),
			slog.Int("retry_after_s", retry),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	})
}

// clientIP returns the remote IP without its port. X-Forwarded-For is not
// trusted; put plotline behind a proxy that rewrites RemoteAddr if needed.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
