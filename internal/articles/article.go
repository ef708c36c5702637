// Package articles mirrors the Substack newsletter into a local JSON store
// that the site serves as its article list.
package articles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"prismatica/internal/fsx"
)

// Block types.
const (
	BlockHeading   = "heading"
	BlockParagraph = "paragraph"
)

type Block struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Article struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Author            string   `json:"author"`
	Date              string   `json:"date"`
	Excerpt           string   `json:"excerpt"`
	CoverImage        string   `json:"coverImage"`
	CoverImageCaption string   `json:"coverImageCaption"`
	ReadTime          string   `json:"readTime"`
	Tags              []string `json:"tags"`
	Link              string   `json:"link,omitempty"`
	Content           []Block  `json:"content"`
}

type document struct {
	Articles []Article `json:"articles"`
}

// Store is the articles.json file. Articles are kept newest first.
type Store struct {
	path string
	mu   sync.RWMutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the stored articles. A missing file is an empty store.
func (s *Store) Load() ([]Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Article{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read articles: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode articles %s: %w", s.path, err)
	}
	if doc.Articles == nil {
		doc.Articles = []Article{}
	}
	return doc.Articles, nil
}

// Save replaces the store atomically.
func (s *Store) Save(articles []Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fsx.WriteJSONAtomic(s.path, document{Articles: articles}, 0o644)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives an article id from its title.
func Slug(title string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(s, "-")
}

const excerptLimit = 150

// Excerpt is the first paragraph, cut to 150 characters.
func Excerpt(blocks []Block) string {
	for _, b := range blocks {
		if b.Type != BlockParagraph {
			continue
		}
		if utf8.RuneCountInString(b.Text) <= excerptLimit {
			return b.Text
		}
		r := []rune(b.Text)
		return strings.TrimSpace(string(r[:excerptLimit])) + "..."
	}
	return ""
}

// ReadTime estimates reading time at 200 words per minute.
func ReadTime(blocks []Block) string {
	words := 0
	for _, b := range blocks {
		words += len(strings.Fields(b.Text))
	}
	minutes := (words + 199) / 200
	return fmt.Sprintf("%d min read", minutes)
}

// CoverImage is the conventional cover path for an article id.
func CoverImage(id string) string {
	return "/images/articles/" + id + "-cover.png"
}
