package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

// Config holds all runtime settings.
type Config struct {
	Listen    string          `yaml:"listen"`
	Env       string          `yaml:"env"`
	LogLevel  string          `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	LLM       LLMConfig       `yaml:"llm"`
	Content   ContentConfig   `yaml:"content"`
	Staleness StalenessConfig `yaml:"staleness"`
	Headlines HeadlinesConfig `yaml:"headlines"`
	Chat      ChatConfig      `yaml:"chat"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Articles  ArticlesConfig  `yaml:"articles"`
	Events    EventsConfig    `yaml:"events"`
	Keys      KeysConfig      `yaml:"keys"`
}

// HTTPConfig controls the outbound client shared by feeds and LLM calls.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	RetryMax  int           `yaml:"retry_max"`
}

// LLMConfig selects the text-generation provider.
// Provider is "anthropic" (default) or "gemini".
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
}

// ContentConfig drives the generation job and the cache file.
type ContentConfig struct {
	CachePath         string        `yaml:"cache_path"`
	Interval          time.Duration `yaml:"interval"`
	RunTimeout        time.Duration `yaml:"run_timeout"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	Expiry            time.Duration `yaml:"expiry"`
	PromptPath        string        `yaml:"prompt_path"`
	Model             string        `yaml:"model"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float64       `yaml:"temperature"`
	SectionsPreset    string        `yaml:"sections_preset"`
}

// StalenessConfig holds the two named read policies. They are kept apart on
// purpose: the API prefers freshness, the page prefers resilience.
type StalenessConfig struct {
	API  time.Duration `yaml:"api"`
	Page time.Duration `yaml:"page"`
}

// Source is one headline feed.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type HeadlinesConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	PerSource int           `yaml:"per_source"`
	Sources   []Source      `yaml:"sources"`
}

type ChatConfig struct {
	Model            string        `yaml:"model"`
	MaxTokens        int           `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
	SystemPromptPath string        `yaml:"system_prompt_path"`
}

type RateLimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
	Sweep  time.Duration `yaml:"sweep"`
}

type ArticlesConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FeedURL       string        `yaml:"feed_url"`
	Path          string        `yaml:"path"`
	DefaultAuthor string        `yaml:"default_author"`
	Interval      time.Duration `yaml:"interval"`
}

// EventsConfig points at the SQLite diagnostics store. Empty DBPath keeps
// events in the log only.
type EventsConfig struct {
	DBPath string `yaml:"db_path"`
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the embedded defaults, overlays the YAML file at path (if any,
// with ${VAR} expansion), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if p, ok := lookup("PORT"); ok && p != "" {
		cfg.Listen = ":" + p
	}
	if env, ok := lookup("APP_ENV"); ok && env != "" {
		cfg.Env = env
	}
	if lvl, ok := lookup("LOG_LEVEL"); ok && lvl != "" {
		cfg.LogLevel = lvl
	}
}

var sectionPresets = map[string]bool{"standard": true, "extended": true}

// modelPrefixes maps each provider to the prefix its model ids share.
var modelPrefixes = map[string]string{
	"anthropic": "claude-",
	"gemini":    "gemini-",
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	prefix, ok := modelPrefixes[c.LLM.Provider]
	if !ok {
		return fmt.Errorf("unknown llm provider %q (valid: anthropic, gemini)", c.LLM.Provider)
	}
	if !strings.HasPrefix(c.Content.Model, prefix) {
		return fmt.Errorf("content.model %q is not a %s model (want %s*)", c.Content.Model, c.LLM.Provider, prefix)
	}
	if !strings.HasPrefix(c.Chat.Model, prefix) {
		return fmt.Errorf("chat.model %q is not a %s model (want %s*)", c.Chat.Model, c.LLM.Provider, prefix)
	}
	if c.LLM.BaseURL != "" {
		if err := validateURL(c.LLM.BaseURL); err != nil {
			return fmt.Errorf("llm.base_url: %w", err)
		}
	}
	if c.Content.CachePath == "" {
		return fmt.Errorf("content.cache_path is required")
	}
	if c.Content.Interval <= 0 {
		return fmt.Errorf("content.interval must be positive")
	}
	if c.Content.MaxTokens <= 0 {
		return fmt.Errorf("content.max_tokens must be positive")
	}
	if !sectionPresets[c.Content.SectionsPreset] {
		return fmt.Errorf("unknown content.sections_preset %q (valid: standard, extended)", c.Content.SectionsPreset)
	}
	if c.Staleness.API <= 0 || c.Staleness.Page <= 0 {
		return fmt.Errorf("staleness.api and staleness.page must be positive")
	}
	if len(c.Headlines.Sources) == 0 {
		return fmt.Errorf("headlines.sources must not be empty")
	}
	for i, s := range c.Headlines.Sources {
		if s.Name == "" {
			return fmt.Errorf("headline source %d: name is required", i)
		}
		if err := validateURL(s.URL); err != nil {
			return fmt.Errorf("headline source %q: %w", s.Name, err)
		}
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.max and rate_limit.window must be positive")
	}
	if c.Articles.Enabled {
		if err := validateURL(c.Articles.FeedURL); err != nil {
			return fmt.Errorf("articles.feed_url: %w", err)
		}
		if c.Articles.Path == "" {
			return fmt.Errorf("articles.path is required when articles are enabled")
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
