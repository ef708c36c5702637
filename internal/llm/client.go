// Package llm talks to the text-generation APIs used for content generation
// and chat.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("empty completion")

// Roles accepted in Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// Completer returns the text of a single completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// KeyFunc resolves the API key when a call is made, so a missing key fails
// that call rather than process startup.
type KeyFunc func() (string, error)

// APIError carries a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Options configures New.
type Options struct {
	Provider string
	// BaseURL overrides the provider endpoint. Empty uses the provider default.
	BaseURL  string
	Key      KeyFunc
	Client   *http.Client
	Timeout  time.Duration
}

// New builds the Completer for opts.Provider ("anthropic" or "gemini").
func New(opts Options) (Completer, error) {
	if opts.Key == nil {
		return nil, fmt.Errorf("llm: key resolver is required")
	}
	switch opts.Provider {
	case "", "anthropic":
		return NewAnthropic(AnthropicOptions{
			BaseURL: opts.BaseURL,
			Key:     opts.Key,
			Client:  opts.Client,
			Timeout: opts.Timeout,
		}), nil
	case "gemini":
		return NewGemini(GeminiOptions{
			BaseURL: opts.BaseURL,
			Key:     opts.Key,
			Client:  opts.Client,
			Timeout: opts.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q (valid: anthropic, gemini)", opts.Provider)
	}
}

// Temperature is a helper for Request.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// withDeadline applies timeout when ctx has no deadline of its own.
func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
