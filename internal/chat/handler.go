// Package chat serves the rate-limited advisor chat endpoint.
package chat

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"prismatica/internal/config"
	"prismatica/internal/llm"
	"prismatica/internal/ratelimit"
)

const (
	maxBodyBytes = 64 << 10
	maxMessages  = 50
)

//go:embed assets/system_prompt.md
var defaultSystemPrompt string

// SystemPrompt returns the prompt at path, or the built-in one when path is
// empty.
func SystemPrompt(path string) (string, error) {
	if path == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read chat system prompt: %w", err)
	}
	return string(data), nil
}

type Request struct {
	Messages []llm.Message `json:"messages"`
}

type Response struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Options struct {
	LLM          llm.Completer
	Limiter      *ratelimit.Limiter
	Model        string
	MaxTokens    int
	Timeout      time.Duration
	SystemPrompt string
	Logger       *zap.Logger
	Now          func() time.Time
}

// Handler answers POST /api/chat.
type Handler struct {
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewHandler(opts Options) *Handler {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{opts: opts, log: log, now: now}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client := ratelimit.ClientID(r)
	rl := h.opts.Limiter.Check(client)
	setLimitHeaders(w, rl)
	if !rl.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(h.now())))
		h.log.Info("Chat rate limited", zap.String("client", client))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests. Please try again later."})
		return
	}

	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if err := validate(req.Messages); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.Timeout)
	defer cancel()

	reply, err := h.opts.LLM.Complete(ctx, llm.Request{
		Model:     h.opts.Model,
		System:    h.opts.SystemPrompt,
		Messages:  req.Messages,
		MaxTokens: h.opts.MaxTokens,
	})
	if errors.Is(err, config.ErrNoAPIKey) {
		h.log.Error("Chat API key is not configured", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Chat is not configured"})
		return
	}
	if err != nil {
		h.log.Error("Chat completion failed", zap.String("client", client), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to process chat message"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: reply})
}

func validate(msgs []llm.Message) error {
	if len(msgs) == 0 {
		return errors.New("messages must not be empty")
	}
	if len(msgs) > maxMessages {
		return fmt.Errorf("at most %d messages are allowed", maxMessages)
	}
	for i, m := range msgs {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return fmt.Errorf("messages[%d]: role must be %q or %q", i, llm.RoleUser, llm.RoleAssistant)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("messages[%d]: content must not be empty", i)
		}
	}
	return nil
}

func setLimitHeaders(w http.ResponseWriter, rl ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
