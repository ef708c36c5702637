package ratelimit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return New(10, time.Minute, WithClock(clock.Now)), clock
}

func TestEleventhRequestDenied(t *testing.T) {
	l, clock := newTestLimiter()
	start := clock.Now()

	for i := 1; i <= 10; i++ {
		r := l.Check("1.2.3.4")
		require.True(t, r.Allowed, "request %d", i)
		assert.Equal(t, 10-i, r.Remaining)
		assert.Equal(t, start.Add(time.Minute), r.ResetAt)
		clock.Advance(time.Second)
	}

	r := l.Check("1.2.3.4")
	assert.False(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)
	assert.Equal(t, 10, r.Limit)
	assert.Equal(t, start.Add(time.Minute), r.ResetAt)
	assert.Equal(t, 50, r.RetryAfter(clock.Now()))
}

func TestFreshWindowAfterReset(t *testing.T) {
	l, clock := newTestLimiter()
	for range 11 {
		l.Check("a")
	}

	// Exactly at resetAt the old window still applies.
	clock.Advance(time.Minute)
	assert.False(t, l.Check("a").Allowed)

	clock.Advance(time.Millisecond)
	r := l.Check("a")
	assert.True(t, r.Allowed)
	assert.Equal(t, 9, r.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), r.ResetAt)
}

func TestIdsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	for range 10 {
		require.True(t, l.Check("a").Allowed)
	}
	assert.False(t, l.Check("a").Allowed)

	r := l.Check("b")
	assert.True(t, r.Allowed)
	assert.Equal(t, 9, r.Remaining)
}

func TestSweepRemovesExpired(t *testing.T) {
	l, clock := newTestLimiter()
	l.Check("old")
	clock.Advance(30 * time.Second)
	l.Check("new")
	require.Equal(t, 2, l.Len())

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	l.Reset("new")
	assert.Equal(t, 0, l.Len())
}

func TestConcurrentChecksNeverExceedMax(t *testing.T) {
	l, _ := newTestLimiter()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestRunSweeperStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := New(1, time.Millisecond)
	l.Check("x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestClientID(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "9.9.9.9", "X-Real-IP": "8.8.8.8", "X-Forwarded-For": "7.7.7.7"}, "9.9.9.9"},
		{"real ip", map[string]string{"X-Real-IP": "8.8.8.8", "X-Forwarded-For": "7.7.7.7"}, "8.8.8.8"},
		{"first forwarded", map[string]string{"X-Forwarded-For": " 7.7.7.7 , 10.0.0.1"}, "7.7.7.7"},
		{"none", nil, "unknown"},
		{"blank forwarded", map[string]string{"X-Forwarded-For": " , 10.0.0.1"}, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/chat", nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientID(r))
		})
	}
}
