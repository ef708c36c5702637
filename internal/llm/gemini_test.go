package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction"`
	GenerationConfig  struct {
		MaxOutputTokens int      `json:"maxOutputTokens"`
		Temperature     *float64 `json:"temperature"`
	} `json:"generationConfig"`
}

func TestGeminiComplete(t *testing.T) {
	var (
		got    geminiRequest
		path   string
		gotKey string
		calls  int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		path = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if gotKey == "" {
			gotKey = r.URL.Query().Get("key")
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  Hello there "}]}}]}`))
	}))
	defer srv.Close()

	c := NewGemini(GeminiOptions{BaseURL: srv.URL + "/", Key: staticKey("gk-test"), Client: srv.Client()})
	out, err := c.Complete(context.Background(), Request{
		Model:  "gemini-test",
		System: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "and?"},
		},
		MaxTokens:   100,
		Temperature: Temperature(0.25),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)

	assert.Equal(t, 1, calls)
	assert.True(t, strings.HasSuffix(path, "/models/gemini-test:generateContent"), path)
	assert.Equal(t, "gk-test", gotKey)

	require.Len(t, got.Contents, 3)
	assert.Equal(t, []string{"user", "model", "user"},
		[]string{got.Contents[0].Role, got.Contents[1].Role, got.Contents[2].Role})
	require.Len(t, got.Contents[1].Parts, 1)
	assert.Equal(t, "hello", got.Contents[1].Parts[0].Text)

	require.NotNil(t, got.SystemInstruction)
	require.Len(t, got.SystemInstruction.Parts, 1)
	assert.Equal(t, "be brief", got.SystemInstruction.Parts[0].Text)

	assert.Equal(t, 100, got.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, got.GenerationConfig.Temperature)
	assert.InDelta(t, 0.25, *got.GenerationConfig.Temperature, 1e-6)
}

func TestGeminiErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c := NewGemini(GeminiOptions{BaseURL: srv.URL + "/", Key: staticKey("k"), Client: srv.Client()})
	_, err := c.Complete(context.Background(), Request{Model: "gemini-test", MaxTokens: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewGemini(GeminiOptions{BaseURL: srv.URL + "/", Key: staticKey("k"), Client: srv.Client()})
	_, err := c.Complete(context.Background(), Request{Model: "gemini-test", MaxTokens: 1})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiMissingKeyMakesNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	errNoKey := errors.New("no key")
	c := NewGemini(GeminiOptions{BaseURL: srv.URL + "/", Key: func() (string, error) { return "", errNoKey }})
	_, err := c.Complete(context.Background(), Request{Model: "gemini-test", MaxTokens: 1})
	assert.ErrorIs(t, err, errNoKey)
	assert.False(t, called)
}

func TestGeminiTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewGemini(GeminiOptions{
		BaseURL: srv.URL + "/",
		Key:     staticKey("k"),
		Client:  srv.Client(),
		Timeout: 50 * time.Millisecond,
	})
	start := time.Now()
	_, err := c.Complete(context.Background(), Request{Model: "gemini-test", MaxTokens: 1})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
