package app

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"prismatica/internal/content"
)

//go:embed templates/home.html
var homeHTML string

var homeTmpl = template.Must(template.New("home").Parse(homeHTML))

// handleDynamicContent serves the flattened slots. It always answers 200;
// stale or missing cache data is replaced with the static copy.
func (s *Server) handleDynamicContent(w http.ResponseWriter, r *http.Request) {
	view := s.opts.Content.Load(s.opts.APIPolicy)
	if view.Source == content.SourceFallback {
		s.log.Debug("Serving fallback content", zap.String("reason", view.Reason))
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, view.Fields)
}

type homeData struct {
	Fields map[string]string
	Slots  []string
}

// handleHome renders the cached slots with the page staleness policy.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	view := s.opts.Content.Load(s.opts.PagePolicy)

	var buf bytes.Buffer
	if err := homeTmpl.Execute(&buf, homeData{Fields: view.Fields, Slots: content.Slots}); err != nil {
		s.log.Error("Failed to render home page", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
