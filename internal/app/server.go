package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"prismatica/internal/articles"
	"prismatica/internal/content"
	"prismatica/internal/ratelimit"
	"prismatica/internal/scheduler"
)

// Options wires the server to its collaborators. Chat and Articles may be
// nil, in which case their routes are not registered.
type Options struct {
	Content    *content.Store
	APIPolicy  content.Policy
	PagePolicy content.Policy
	Chat       http.Handler
	Limiter    *ratelimit.Limiter
	SweepEvery time.Duration
	Articles   *articles.Store
	Jobs       []*scheduler.Scheduler
	Logger     *zap.Logger
}

// Server is the application server.
type Server struct {
	opts    Options
	log     *zap.Logger
	feed    *FeedHandler
	mux     *http.ServeMux
	handler http.Handler
	started time.Time
}

func NewServer(opts Options) (*Server, error) {
	if opts.Content == nil {
		return nil, errors.New("app: content store is required")
	}
	if opts.APIPolicy.MaxAge <= 0 {
		opts.APIPolicy = content.PolicyAPI
	}
	if opts.PagePolicy.MaxAge <= 0 {
		opts.PagePolicy = content.PolicyPage
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = 5 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		opts:    opts,
		log:     log,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	if opts.Articles != nil {
		s.feed = NewFeedHandler(opts.Articles, log)
	}
	s.registerRoutes()
	s.handler = s.withCommonHeaders(s.withRequestLog(s.mux))
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /api/dynamic-content", s.handleDynamicContent)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.opts.Chat != nil {
		s.mux.Handle("POST /api/chat", s.opts.Chat)
	}
	if s.feed != nil {
		s.mux.HandleFunc("GET /api/articles", s.feed.ServeArticles)
		s.mux.Handle("GET /feed", s.feed)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. The rate limiter sweeper runs for the server's lifetime.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if s.opts.Limiter != nil {
		go s.opts.Limiter.RunSweeper(ctx, s.opts.SweepEvery)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// withCommonHeaders adds CORS and common headers.
func (s *Server) withCommonHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Server", "prismatica")
		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.log.Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// handleHealth returns JSON health information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	view := s.opts.Content.Load(s.opts.APIPolicy)
	cache := map[string]any{
		"source": view.Source,
		"policy": s.opts.APIPolicy.Name,
	}
	if view.Reason != "" {
		cache["reason"] = view.Reason
	}
	if !view.Generated.IsZero() {
		cache["generated"] = view.Generated.Format(time.RFC3339)
		cache["age_seconds"] = int64(view.Age.Seconds())
	}

	health := map[string]any{
		"status":    "ok",
		"service":   "prismatica",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"content":   cache,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if s.opts.Limiter != nil {
		health["rate_limit_clients"] = s.opts.Limiter.Len()
	}
	if len(s.opts.Jobs) > 0 {
		jobs := make([]scheduler.Status, 0, len(s.opts.Jobs))
		for _, j := range s.opts.Jobs {
			jobs = append(jobs, j.Status())
		}
		health["jobs"] = jobs
	}
	writeJSON(w, http.StatusOK, health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
