package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

type GeminiOptions struct {
	// BaseURL overrides the SDK's endpoint. Empty uses the public API.
	BaseURL string
	Key     KeyFunc
	Client  *http.Client
	// Timeout is applied when the caller's context carries no deadline.
	Timeout time.Duration
}

// Gemini calls the Gemini API through the genai SDK. A client is built per
// call because the key is resolved per call.
type Gemini struct {
	baseURL string
	key     KeyFunc
	client  *http.Client
	timeout time.Duration
}

func NewGemini(opts GeminiOptions) *Gemini {
	return &Gemini{baseURL: opts.BaseURL, key: opts.Key, client: opts.Client, timeout: opts.Timeout}
}

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	key, err := g.key()
	if err != nil {
		return "", err
	}

	ctx, cancel := withDeadline(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.client,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
