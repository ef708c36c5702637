package articles

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"prismatica/internal/events"
)

// Extractor fetches the article body for items whose feed entry carries no
// content.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

type SyncOptions struct {
	FeedURL       string
	DefaultAuthor string
	Store         *Store
	Client        *http.Client
	UserAgent     string
	// Extractor is optional; without it, items with no body are skipped.
	Extractor Extractor
	Logger    *zap.Logger
	Sink      events.Sink
	Now       func() time.Time
}

// SyncResult summarizes one sync.
type SyncResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

type Syncer struct {
	opts SyncOptions
	log  *zap.Logger
	sink events.Sink
	now  func() time.Time
}

func NewSyncer(opts SyncOptions) *Syncer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.Discard{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Syncer{opts: opts, log: log, sink: sink, now: now}
}

// Run is the scheduled form of Sync; it records the outcome as an event.
func (s *Syncer) Run(ctx context.Context) error {
	start := time.Now()
	res, err := s.Sync(ctx)

	kind := events.ArticlesSynced
	if err != nil {
		kind = events.ArticlesFailed
	}
	ev := events.New(kind, "")
	ev.Duration = time.Since(start)
	ev.Attrs = map[string]any{"added": res.Added, "skipped": res.Skipped, "total": res.Total}
	if err != nil {
		ev.Error = err.Error()
	}
	s.sink.Emit(ctx, ev)
	return err
}

// Sync fetches the feed and adds articles not already in the store. New
// articles go in front, in feed order.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	existing, err := s.opts.Store.Load()
	if err != nil {
		return res, err
	}
	res.Total = len(existing)

	fp := gofeed.NewParser()
	if s.opts.Client != nil {
		fp.Client = s.opts.Client
	}
	if s.opts.UserAgent != "" {
		fp.UserAgent = s.opts.UserAgent
	}
	feed, err := fp.ParseURLWithContext(s.opts.FeedURL, ctx)
	if err != nil {
		return res, fmt.Errorf("fetch article feed: %w", err)
	}
	s.log.Info("Fetched article feed", zap.String("url", s.opts.FeedURL), zap.Int("items", len(feed.Items)))

	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a.ID] = true
	}

	var added []Article
	for _, item := range feed.Items {
		id := Slug(item.Title)
		if id == "" || seen[id] {
			res.Skipped++
			continue
		}

		a, err := s.build(ctx, id, item)
		if err != nil {
			s.log.Warn("Skipping article", zap.String("title", item.Title), zap.Error(err))
			res.Skipped++
			continue
		}
		seen[id] = true
		added = append(added, a)
	}

	res.Added = len(added)
	if res.Added == 0 {
		s.log.Info("No new articles")
		return res, nil
	}

	all := append(added, existing...)
	if err := s.opts.Store.Save(all); err != nil {
		return res, err
	}
	res.Total = len(all)
	s.log.Info("Articles synced", zap.Int("added", res.Added), zap.Int("total", res.Total))
	return res, nil
}

func (s *Syncer) build(ctx context.Context, id string, item *gofeed.Item) (Article, error) {
	raw := item.Content
	if strings.TrimSpace(raw) == "" {
		raw = item.Description
	}
	if strings.TrimSpace(raw) == "" && item.Link != "" && s.opts.Extractor != nil {
		page, err := s.opts.Extractor.Extract(ctx, item.Link)
		if err != nil {
			return Article{}, fmt.Errorf("extract %s: %w", item.Link, err)
		}
		raw = page
	}
	if strings.TrimSpace(raw) == "" {
		return Article{}, ErrNoContent
	}

	blocks, err := Blocks(raw)
	if err != nil {
		return Article{}, err
	}
	if len(blocks) == 0 {
		return Article{}, ErrNoContent
	}

	author := s.opts.DefaultAuthor
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		author = strings.TrimSpace(item.Author.Name)
	}
	published := s.now()
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	}
	tags := item.Categories
	if tags == nil {
		tags = []string{}
	}

	return Article{
		ID:         id,
		Title:      strings.TrimSpace(item.Title),
		Author:     author,
		Date:       published.UTC().Format(time.DateOnly),
		Excerpt:    Excerpt(blocks),
		CoverImage: CoverImage(id),
		ReadTime:   ReadTime(blocks),
		Tags:       tags,
		Link:       item.Link,
		Content:    blocks,
	}, nil
}
