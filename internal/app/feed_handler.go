package app

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"go.uber.org/zap"

	"prismatica/internal/articles"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// FeedHandler republishes the synced articles as RSS and as JSON.
type FeedHandler struct {
	Store *articles.Store
	log   *zap.Logger
}

func NewFeedHandler(store *articles.Store, log *zap.Logger) *FeedHandler {
	return &FeedHandler{Store: store, log: log}
}

// ServeArticles answers GET /api/articles.
func (h *FeedHandler) ServeArticles(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.Load()
	if err != nil {
		h.log.Error("Failed to load articles", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load articles"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": list})
}

// ServeHTTP answers GET /feed with an RSS document. ?limit caps the number
// of items.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxFeedLimit)
	}

	list, err := h.Store.Load()
	if err != nil {
		h.log.Error("Failed to load articles", zap.Error(err))
		http.Error(w, "failed to load articles", http.StatusInternalServerError)
		return
	}
	if len(list) > limit {
		list = list[:limit]
	}

	rss, err := BuildFeed(baseURL(r), list).ToRss()
	if err != nil {
		h.log.Error("Failed to render feed", zap.Error(err))
		http.Error(w, "failed to render feed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rss))
}

// BuildFeed converts stored articles into a feed rooted at base.
func BuildFeed(base string, list []articles.Article) *feeds.Feed {
	out := &feeds.Feed{
		Title:       "Prismatica Labs",
		Link:        &feeds.Link{Href: base},
		Description: "Essays from Prismatica Labs",
		Author:      &feeds.Author{Name: "Prismatica Labs"},
		Created:     time.Now(),
	}

	for _, a := range list {
		link := a.Link
		if link == "" {
			link = base + "/articles/" + a.ID
		}
		created, err := time.Parse(time.DateOnly, a.Date)
		if err != nil {
			created = time.Time{}
		}
		out.Items = append(out.Items, &feeds.Item{
			Id:          a.ID,
			Title:       a.Title,
			Link:        &feeds.Link{Href: link},
			Description: a.Excerpt,
			Author:      &feeds.Author{Name: a.Author},
			Created:     created,
			Content:     renderBlocks(a.Content),
		})
	}
	if len(out.Items) > 0 {
		out.Updated = out.Items[0].Created
	}
	return out
}

func renderBlocks(blocks []articles.Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		tag := "p"
		if blk.Type == articles.BlockHeading {
			tag = "h2"
		}
		fmt.Fprintf(&b, "<%s>%s</%s>\n", tag, html.EscapeString(blk.Text), tag)
	}
	return b.String()
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
