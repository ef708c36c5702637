package headlines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoHeadlines is returned when every source came back empty.
var ErrNoHeadlines = errors.New("no headlines available from any source")

// Source is a named RSS/Atom feed.
type Source struct {
	Name string
	URL  string
}

// Headline is one feed item title tagged with its source.
type Headline struct {
	Source string
	Title  string
	Link   string
}

// Display is the labeled form handed to the prompt, e.g. "[BBC] Rates held".
func (h Headline) Display() string {
	return "[" + h.Source + "] " + h.Title
}

// Result is the outcome of one fetch across all sources. Headlines keep
// source order, then feed order within a source.
type Result struct {
	Headlines []Headline
	Counts    map[string]int
	Errors    map[string]error
}

// Displays returns the labeled titles.
func (r Result) Displays() []string {
	out := make([]string, len(r.Headlines))
	for i, h := range r.Headlines {
		out[i] = h.Display()
	}
	return out
}

type Options struct {
	Sources   []Source
	PerSource int
	// Timeout bounds each source independently.
	Timeout   time.Duration
	Client    *http.Client
	UserAgent string
	Logger    *zap.Logger
}

// Fetcher pulls recent headlines from a fixed list of feeds.
type Fetcher struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options) *Fetcher {
	if opts.PerSource <= 0 {
		opts.PerSource = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{opts: opts, log: log}
}

// Fetch reads every source concurrently. A failing source contributes no
// headlines and an entry in Result.Errors; only an overall empty result is
// an error.
func (f *Fetcher) Fetch(ctx context.Context) (Result, error) {
	perSource := make([][]Headline, len(f.opts.Sources))
	res := Result{
		Counts: make(map[string]int, len(f.opts.Sources)),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	var g errgroup.Group
	for i, src := range f.opts.Sources {
		g.Go(func() error {
			items, err := f.fetchSource(ctx, src)
			mu.Lock()
			defer mu.Unlock()
			res.Counts[src.Name] = len(items)
			if err != nil {
				res.Errors[src.Name] = err
				f.log.Warn("Headline source failed", zap.String("source", src.Name), zap.Error(err))
				return nil
			}
			perSource[i] = items
			f.log.Debug("Headline source fetched", zap.String("source", src.Name), zap.Int("items", len(items)))
			return nil
		})
	}
	_ = g.Wait()

	for _, items := range perSource {
		res.Headlines = append(res.Headlines, items...)
	}
	if len(res.Headlines) == 0 {
		return res, fmt.Errorf("%w (%d of %d sources failed)", ErrNoHeadlines, len(res.Errors), len(f.opts.Sources))
	}
	return res, nil
}

func (f *Fetcher) fetchSource(ctx context.Context, src Source) ([]Headline, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	// gofeed parsers keep per-parse state, so each source gets its own.
	fp := gofeed.NewParser()
	if f.opts.Client != nil {
		fp.Client = f.opts.Client
	}
	if f.opts.UserAgent != "" {
		fp.UserAgent = f.opts.UserAgent
	}

	feed, err := fp.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}

	out := make([]Headline, 0, f.opts.PerSource)
	for _, item := range feed.Items {
		if len(out) == f.opts.PerSource {
			break
		}
		title := CleanTitle(item.Title)
		if title == "" {
			continue
		}
		out = append(out, Headline{Source: src.Name, Title: title, Link: item.Link})
	}
	return out, nil
}

// CleanTitle strips markup and entities from a feed title and collapses
// whitespace.
func CleanTitle(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	text := raw
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
		text = doc.Text()
	}
	return strings.Join(strings.Fields(text), " ")
}
