// Package ratelimit implements a per-key sliding-window request limiter.
//
// Every key keeps the timestamps of its accepted requests inside the
// window. A request is rejected once the window already holds the allowed
// number of requests; the caller is told how long until the oldest one
// expires.
package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/natuvoice/internal/observe"
)

// sweepEvery is how many Allow calls pass between removals of idle keys.
const sweepEvery = 1024

// Limiter is a sliding-window limiter keyed by an arbitrary string. It is
// safe for concurrent use.
type Limiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	metrics *observe.Metrics

	mu    sync.Mutex
	hits  map[string][]time.Time
	calls int
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithMetrics counts rejections in m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// New returns a Limiter allowing limit requests per key within window. A
// limit of zero or less disables limiting.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Limit returns the allowed requests per window.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records a request for key. When the key is over its limit the
// request is not recorded and retryAfter is the whole-second wait until a
// slot frees, never below one second.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	ts := prune(l.hits[key], now, l.window)
	if len(ts) >= l.limit {
		l.hits[key] = ts
		wait := (l.window - now.Sub(ts[0])).Truncate(time.Second)
		return false, max(time.Second, wait)
	}
	l.hits[key] = append(ts, now)
	return true, 0
}

func (l *Limiter) sweep(now time.Time) {
	for k, ts := range l.hits {
		if ts = prune(ts, now, l.window); len(ts) == 0 {
			delete(l.hits, k)
		} else {
			l.hits[k] = ts
		}
	}
}

// prune drops timestamps older than window. ts is ordered oldest first.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) > window {
		i++
	}
	return ts[i:]
}

type rejection struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error"`
	RetryAfterSec int    `json:"retry_after_sec"`
}

// Middleware limits requests whose URL path is in paths, keyed by key(r).
// Other paths pass through untouched. Rejected requests get 429 with a
// Retry-After header.
func (l *Limiter) Middleware(paths []string, key func(*http.Request) string) func(http.Handler) http.Handler {
	limited := make(map[string]bool, len(paths))
	for _, p := range paths {
		limited[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limited[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Allow(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			l.reject(r.Context(), w, int(wait/time.Second))
		})
	}
}

func (l *Limiter) reject(ctx context.Context, w http.ResponseWriter, secs int) {
	if l.metrics != nil {
		l.metrics.RateLimited.Add(ctx, 1)
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(rejection{Error: "Rate limit exceeded", RetryAfterSec: secs})
}
