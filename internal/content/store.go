package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
	"go.uber.org/zap"

	"prismatica/internal/fsx"
)

// ErrCorrupt is returned by Store.Read for a file that is not a valid cache
// document.
var ErrCorrupt = errors.New("corrupt cache file")

// Policy is a named maximum cache age.
type Policy struct {
	Name   string
	MaxAge time.Duration
}

// Staleness presets. The content API accepts roughly one missed run; page
// rendering keeps generated copy for two days.
var (
	PolicyAPI  = Policy{Name: "api", MaxAge: 70 * time.Minute}
	PolicyPage = Policy{Name: "page", MaxAge: 48 * time.Hour}
)

// Source says where a View's fields came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Fallback reasons.
const (
	ReasonMissing = "missing"
	ReasonCorrupt = "corrupt"
	ReasonStale   = "stale"
	ReasonPanic   = "panic"
)

// View is what the serving path gets back from Load. Fields always holds
// every slot.
type View struct {
	Fields    map[string]string `json:"fields"`
	Generated time.Time         `json:"generated,omitzero"`
	Source    Source            `json:"source"`
	Reason    string            `json:"reason,omitempty"`
	Age       time.Duration     `json:"age,omitempty"`
}

type StoreOptions struct {
	Path   string
	Logger *zap.Logger
	Now    func() time.Time
}

// Store owns the single cache file.
type Store struct {
	path string
	log  *zap.Logger
	now  func() time.Time
}

func NewStore(opts StoreOptions) *Store {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{path: opts.Path, log: log, now: now}
}

func (s *Store) Path() string { return s.path }

// Write replaces the cache file atomically.
func (s *Store) Write(c CachedContent) error {
	if err := fsx.WriteJSONAtomic(s.path, c, 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", s.path, err)
	}
	return nil
}

// Read returns the cache document as stored. A missing file yields an error
// matching fs.ErrNotExist; an invalid one yields ErrCorrupt.
func (s *Store) Read() (CachedContent, error) {
	var c CachedContent
	data, err := os.ReadFile(s.path)
	if err != nil {
		return c, err
	}
	if !json.Valid(data) {
		return c, fmt.Errorf("%w: not valid JSON", ErrCorrupt)
	}
	schema, err := cacheSchema()
	if err != nil {
		return c, err
	}
	if res := schema.ValidateJSON(data); !res.IsValid() {
		return c, fmt.Errorf("%w: schema validation failed: %v", ErrCorrupt, res.Errors)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return c, nil
}

// Load returns the content to serve under p. It never fails and never
// panics; anything unusable results in the static copy.
func (s *Store) Load(p Policy) (v View) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Recovered while loading cache", zap.Any("panic", r))
			v = fallbackView(ReasonPanic)
		}
	}()

	c, err := s.Read()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fallbackView(ReasonMissing)
	case err != nil:
		s.log.Warn("Unusable cache file", zap.String("path", s.path), zap.Error(err))
		return fallbackView(ReasonCorrupt)
	}

	age := s.now().Sub(c.Generated)
	if age > p.MaxAge {
		s.log.Debug("Cache too old for policy",
			zap.String("policy", p.Name),
			zap.Duration("age", age),
			zap.Duration("max_age", p.MaxAge))
		v := fallbackView(ReasonStale)
		v.Age = age
		return v
	}

	return View{
		Fields:    merge(c.Content),
		Generated: c.Generated,
		Source:    SourceCache,
		Age:       age,
	}
}

func fallbackView(reason string) View {
	return View{Fields: Defaults(), Source: SourceFallback, Reason: reason}
}

var cacheSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	data, err := assets.ReadFile("assets/cache.schema.json")
	if err != nil {
		return nil, fmt.Errorf("read cache schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile cache schema: %w", err)
	}
	return schema, nil
})
