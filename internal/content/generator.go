package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"go.uber.org/zap"

	"prismatica/internal/headlines"
	"prismatica/internal/llm"
)

// HeadlineSource is satisfied by *headlines.Fetcher.
type HeadlineSource interface {
	Fetch(ctx context.Context) (headlines.Result, error)
}

type GeneratorOptions struct {
	Headlines   HeadlineSource
	LLM         llm.Completer
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds the text-generation call alone.
	Timeout  time.Duration
	Expiry   time.Duration
	Sections []Section
	Prompt   Prompt
	Logger   *zap.Logger
	Now      func() time.Time
}

// Generator turns the current headlines into a CachedContent document.
type Generator struct {
	opts GeneratorOptions
	log  *zap.Logger
	now  func() time.Time
}

func NewGenerator(opts GeneratorOptions) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 600
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Expiry <= 0 {
		opts.Expiry = time.Hour
	}
	if len(opts.Sections) == 0 {
		opts.Sections = StandardSections
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{opts: opts, log: log, now: now}
}

// Generate runs one generation. It never fails: any error is folded into a
// fallback document carrying the error in its metadata.
func (g *Generator) Generate(ctx context.Context) CachedContent {
	start := g.now()
	runID := uuid.NewString()
	log := g.log.With(zap.String("run_id", runID))

	meta := Metadata{RunID: runID, Model: g.opts.Model}

	res, err := g.opts.Headlines.Fetch(ctx)
	meta.Sources = res.Counts
	for name, srcErr := range res.Errors {
		log.Warn("Headline source failed", zap.String("source", name), zap.Error(srcErr))
	}
	if err != nil {
		return g.fallback(start, meta, err)
	}
	meta.HeadlinesAnalyzed = len(res.Headlines)

	prompt, promptFile, err := g.opts.Prompt.Render(res.Displays())
	meta.PromptFile = promptFile
	if err != nil {
		return g.fallback(start, meta, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	reply, err := g.opts.LLM.Complete(callCtx, llm.Request{
		Model:       g.opts.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: llm.Temperature(g.opts.Temperature),
	})
	if err != nil {
		return g.fallback(start, meta, fmt.Errorf("generate: %w", err))
	}

	fields, err := Parse(reply, g.opts.Sections)
	if err != nil {
		log.Debug("Unparseable reply", zap.String("reply", reply))
		return g.fallback(start, meta, err)
	}
	fields[SlotPatternInsight] = defaults[SlotPatternInsight]

	if digest, err := Digest(fields); err == nil {
		meta.ContentDigest = digest
	} else {
		log.Warn("Failed to digest content", zap.Error(err))
	}

	end := g.now()
	meta.GenerationTimeMs = end.Sub(start).Milliseconds()
	log.Info("Content generated",
		zap.Int("headlines", meta.HeadlinesAnalyzed),
		zap.Int64("duration_ms", meta.GenerationTimeMs))

	return CachedContent{
		Generated: end.UTC(),
		Expires:   end.Add(g.opts.Expiry).UTC(),
		Content:   fields,
		Metadata:  meta,
	}
}

func (g *Generator) fallback(start time.Time, meta Metadata, cause error) CachedContent {
	now := g.now()
	errTime := now.UTC()
	meta.Error = cause.Error()
	meta.ErrorTime = &errTime
	meta.GenerationTimeMs = now.Sub(start).Milliseconds()

	fields := Defaults()
	if digest, err := Digest(fields); err == nil {
		meta.ContentDigest = digest
	}

	g.log.Warn("Content generation failed, writing fallback",
		zap.String("run_id", meta.RunID), zap.Error(cause))

	return CachedContent{
		Generated:    now.UTC(),
		Expires:      now.Add(g.opts.Expiry).UTC(),
		Content:      fields,
		Metadata:     meta,
		FallbackUsed: true,
	}
}

// Digest returns the SHA-256 of the RFC 8785 canonical form of fields.
func Digest(fields map[string]string) (string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
