package articles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"prismatica/internal/fetch"
)

const maxPageBytes = 5 << 20

// ErrNoContent is returned when a page has no recognizable article body.
var ErrNoContent = errors.New("no article content found")

// PageExtractor fetches an article page and returns its main content as
// HTML. go-readability is tried first, then a list of common containers.
type PageExtractor struct {
	client *fetch.Client
}

func NewPageExtractor(client *fetch.Client) *PageExtractor {
	return &PageExtractor{client: client}
}

func (e *PageExtractor) Extract(ctx context.Context, pageURL string) (string, error) {
	resp, err := e.client.Get(ctx, pageURL, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected HTTP status %d for %s", resp.StatusCode, pageURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}

	if u, err := url.Parse(pageURL); err == nil {
		doc, err := readability.FromReader(bytes.NewReader(body), u)
		if err == nil && strings.TrimSpace(doc.Content) != "" {
			return doc.Content, nil
		}
	}
	return containerHTML(body)
}

var containerSelectors = []string{
	"article",
	"main",
	".available-content",
	".body.markup",
	".post-content",
	".entry-content",
}

func containerHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	for _, sel := range containerSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		s.Find("script, iframe, style, form, .subscription-widget, .share").Remove()
		html, _ := s.Html()
		if html = strings.TrimSpace(html); html != "" {
			return html, nil
		}
	}
	return "", ErrNoContent
}

const minParagraphRunes = 10

var boilerplate = []string{"subscribe now", "leave a comment", "share what"}

// Blocks converts article HTML into heading and paragraph blocks in
// document order, dropping newsletter call-to-action text.
func Blocks(html string) ([]Block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []Block
	doc.Find("h1, h2, h3, h4, p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || isBoilerplate(text) {
			return
		}
		if goquery.NodeName(s) == "p" {
			if utf8.RuneCountInString(text) < minParagraphRunes {
				return
			}
			out = append(out, Block{Type: BlockParagraph, Text: text})
			return
		}
		out = append(out, Block{Type: BlockHeading, Text: text})
	})
	return out, nil
}

func isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	if lower == "share" {
		return true
	}
	for _, b := range boilerplate {
		if strings.Contains(lower, b) {
			return true
		}
	}
	return false
}
