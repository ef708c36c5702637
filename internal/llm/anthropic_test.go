package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prismatica/internal/fetch"
)

func staticKey(k string) KeyFunc {
	return func() (string, error) { return k, nil }
}

func TestAnthropicComplete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  Hello "},{"type":"text","text":"there"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropic(AnthropicOptions{BaseURL: srv.URL + "/v1/", Key: staticKey("sk-test")})
	out, err := c.Complete(context.Background(), Request{
		Model:       "claude-test",
		System:      "be brief",
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens:   100,
		Temperature: Temperature(0.2),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "be brief", got.System)
	assert.Equal(t, 100, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	assert.Equal(t, []Message{{Role: "user", Content: "hi"}}, got.Messages)
}

func TestAnthropicNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewAnthropic(AnthropicOptions{BaseURL: srv.URL, Key: staticKey("k")})
	_, err := c.Complete(context.Background(), Request{Model: "m", MaxTokens: 1})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "slow down")
}

func TestAnthropicEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	c := NewAnthropic(AnthropicOptions{BaseURL: srv.URL, Key: staticKey("k")})
	_, err := c.Complete(context.Background(), Request{Model: "m", MaxTokens: 1})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicMissingKeyMakesNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	errNoKey := errors.New("no key")
	c := NewAnthropic(AnthropicOptions{BaseURL: srv.URL, Key: func() (string, error) { return "", errNoKey }})
	_, err := c.Complete(context.Background(), Request{Model: "m", MaxTokens: 1})
	assert.ErrorIs(t, err, errNoKey)
	assert.False(t, called)
}

func TestAnthropicTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewAnthropic(AnthropicOptions{BaseURL: srv.URL, Key: staticKey("k"), Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Complete(context.Background(), Request{Model: "m", MaxTokens: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewProviders(t *testing.T) {
	c, err := New(Options{Provider: "anthropic", Key: staticKey("k")})
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, c)

	c, err = New(Options{Provider: "gemini", Key: staticKey("k")})
	require.NoError(t, err)
	assert.IsType(t, &Gemini{}, c)

	_, err = New(Options{Provider: "bard", Key: staticKey("k")})
	assert.Error(t, err)

	_, err = New(Options{Provider: "anthropic"})
	assert.Error(t, err)
}

func TestAnthropicSlowReplyBoundedByCallTimeout(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"late but whole"}]}`))
	}))
	defer srv.Close()

	// The shared feed client would give up after 100ms per attempt.
	client := fetch.NewAPIClient(fetch.ClientOptions{Timeout: 100 * time.Millisecond, RetryMax: 2})
	c := NewAnthropic(AnthropicOptions{BaseURL: srv.URL, Key: staticKey("k"), Client: client})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := c.Complete(ctx, Request{Model: "m", MaxTokens: 1})
	require.NoError(t, err)
	assert.Equal(t, "late but whole", out)
	assert.Equal(t, int32(1), posts.Load())
}
