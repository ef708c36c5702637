// Package ratelimit implements a fixed-window request limiter keyed by
// client id. State is process-local and lost on restart.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Result describes one Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time until the window resets, rounded up to whole
// seconds and never below one.
func (r Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter allows Max requests per Window for each id.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]entry
	max     int
	window  time.Duration
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		entries: make(map[string]entry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check counts one request for id and reports whether it may proceed. A
// window starts at the first request after the previous one ended.
func (l *Limiter) Check(id string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[id]
	if !ok || now.After(e.resetAt) {
		e = entry{count: 1, resetAt: now.Add(l.window)}
		l.entries[id] = e
		return Result{Allowed: true, Limit: l.max, Remaining: l.max - 1, ResetAt: e.resetAt}
	}

	if e.count < l.max {
		e.count++
		l.entries[id] = e
		return Result{Allowed: true, Limit: l.max, Remaining: l.max - e.count, ResetAt: e.resetAt}
	}

	return Result{Allowed: false, Limit: l.max, Remaining: 0, ResetAt: e.resetAt}
}

// Reset forgets id.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	delete(l.entries, id)
	l.mu.Unlock()
}

// Len returns the number of tracked ids, expired or not.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep removes entries whose window has ended and returns how many.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for id, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// ClientID picks the caller identity from proxy headers. Requests without
// any of them share the "unknown" bucket.
func ClientID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return "unknown"
}
