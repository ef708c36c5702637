package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prismatica/internal/headlines"
	"prismatica/internal/llm"
)

type stubHeadlines struct {
	res headlines.Result
	err error
}

func (s stubHeadlines) Fetch(context.Context) (headlines.Result, error) {
	return s.res, s.err
}

type stubLLM struct {
	reply string
	err   error
	block bool
	calls []llm.Request
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.calls = append(s.calls, req)
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

func oneHeadline() headlines.Result {
	return headlines.Result{
		Headlines: []headlines.Headline{{Source: "BBC", Title: "UK inflation falls to 2%"}},
		Counts:    map[string]int{"BBC": 1, "NYT": 0},
		Errors:    map[string]error{"NYT": errors.New("timeout")},
	}
}

func newTestGenerator(h HeadlineSource, c llm.Completer, mutate ...func(*GeneratorOptions)) *Generator {
	opts := GeneratorOptions{
		Headlines:   h,
		LLM:         c,
		Model:       "test-model",
		Temperature: 0.2,
		Timeout:     time.Second,
		Now:         func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewGenerator(opts)
}

func assertFallback(t *testing.T, c CachedContent) {
	t.Helper()
	assert.True(t, c.FallbackUsed)
	assert.Equal(t, Defaults(), c.Content)
	assert.NotEmpty(t, c.Metadata.Error)
	require.NotNil(t, c.Metadata.ErrorTime)
	assert.True(t, c.Metadata.ErrorTime.Equal(testNow))
	assert.True(t, c.Expires.Equal(testNow.Add(time.Hour)))
}

func TestGenerateOneHeadline(t *testing.T) {
	model := &stubLLM{reply: "INSIGHT: Falling prices change who feels safe.\nQUESTION: UK inflation falling to 2%, for example.\nREMINDER: Remember how prices settled?"}
	g := newTestGenerator(stubHeadlines{res: oneHeadline()}, model)

	c := g.Generate(context.Background())

	assert.False(t, c.FallbackUsed)
	assert.Empty(t, c.Metadata.Error)
	assert.Equal(t, "Falling prices change who feels safe.", c.Content[SlotNewsInsight])
	assert.Equal(t, "UK inflation falling to 2%, for example.", c.Content[SlotIntelligenceExample])
	assert.Equal(t, "Remember how prices settled?", c.Content[SlotContentReminder])
	assert.Equal(t, defaults[SlotPatternInsight], c.Content[SlotPatternInsight])
	assert.Len(t, c.Content, 4)

	assert.Equal(t, 1, c.Metadata.HeadlinesAnalyzed)
	assert.Equal(t, map[string]int{"BBC": 1, "NYT": 0}, c.Metadata.Sources)
	assert.Equal(t, "test-model", c.Metadata.Model)
	assert.Equal(t, "assets/prompt_standard.md", c.Metadata.PromptFile)
	assert.NotEmpty(t, c.Metadata.RunID)
	assert.True(t, strings.HasPrefix(c.Metadata.ContentDigest, "sha256:"))
	assert.True(t, c.Generated.Equal(testNow))

	require.Len(t, model.calls, 1)
	req := model.calls[0]
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, 600, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "- [BBC] UK inflation falls to 2%")
	assert.NotContains(t, req.Messages[0].Content, Placeholder)
}

func TestGenerateNoHeadlinesFallsBack(t *testing.T) {
	model := &stubLLM{}
	res := headlines.Result{
		Counts: map[string]int{"BBC": 0, "NYT": 0},
		Errors: map[string]error{"BBC": errors.New("dial"), "NYT": errors.New("dial")},
	}
	err := fmt.Errorf("%w (2 of 2 sources failed)", headlines.ErrNoHeadlines)
	g := newTestGenerator(stubHeadlines{res: res, err: err}, model)

	c := g.Generate(context.Background())

	assertFallback(t, c)
	assert.Contains(t, c.Metadata.Error, headlines.ErrNoHeadlines.Error())
	assert.Empty(t, model.calls, "no generation call without headlines")
}

func TestGenerateLLMErrorFallsBack(t *testing.T) {
	model := &stubLLM{err: &llm.APIError{Provider: "anthropic", StatusCode: 529, Body: "overloaded"}}
	c := newTestGenerator(stubHeadlines{res: oneHeadline()}, model).Generate(context.Background())

	assertFallback(t, c)
	assert.Contains(t, c.Metadata.Error, "overloaded")
	assert.Equal(t, 1, c.Metadata.HeadlinesAnalyzed)
}

func TestGenerateUnparseableReplyFallsBack(t *testing.T) {
	model := &stubLLM{reply: "Sure! Here are some thoughts about the news."}
	c := newTestGenerator(stubHeadlines{res: oneHeadline()}, model).Generate(context.Background())

	assertFallback(t, c)
	assert.Contains(t, c.Metadata.Error, ErrParse.Error())
}

func TestGenerateTimeoutFallsBack(t *testing.T) {
	model := &stubLLM{block: true}
	g := newTestGenerator(stubHeadlines{res: oneHeadline()}, model, func(o *GeneratorOptions) {
		o.Timeout = 20 * time.Millisecond
	})

	done := make(chan CachedContent, 1)
	go func() { done <- g.Generate(context.Background()) }()

	select {
	case c := <-done:
		assertFallback(t, c)
		assert.Contains(t, c.Metadata.Error, context.DeadlineExceeded.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not honor its timeout")
	}
}

func TestGeneratePromptOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("Headlines:\n{{HEADLINES}}\nGo."), 0o644))

	model := &stubLLM{reply: "INSIGHT: a\nQUESTION: b\nREMINDER: c"}
	g := newTestGenerator(stubHeadlines{res: oneHeadline()}, model, func(o *GeneratorOptions) {
		o.Prompt = Prompt{Path: path}
	})

	c := g.Generate(context.Background())
	require.False(t, c.FallbackUsed)
	assert.Equal(t, path, c.Metadata.PromptFile)
	assert.Equal(t, "Headlines:\n- [BBC] UK inflation falls to 2%\nGo.", model.calls[0].Messages[0].Content)

	// The file is read on every run.
	require.NoError(t, os.WriteFile(path, []byte("no placeholder here"), 0o644))
	c = g.Generate(context.Background())
	assertFallback(t, c)
	assert.Contains(t, c.Metadata.Error, ErrTemplate.Error())
	assert.Len(t, model.calls, 1)
}

func TestGenerateExtendedPreset(t *testing.T) {
	var reply strings.Builder
	for _, s := range ExtendedSections {
		fmt.Fprintf(&reply, "%s: copy for %s\n", s.Label, s.Slot)
	}
	model := &stubLLM{reply: reply.String()}
	g := newTestGenerator(stubHeadlines{res: oneHeadline()}, model, func(o *GeneratorOptions) {
		o.Sections = ExtendedSections
		o.Prompt = Prompt{Preset: PresetExtended}
	})

	c := g.Generate(context.Background())
	require.False(t, c.FallbackUsed, c.Metadata.Error)
	assert.Len(t, c.Content, len(Slots))
	assert.Equal(t, "copy for "+SlotTriptychDescription, c.Content[SlotTriptychDescription])
	assert.Equal(t, "assets/prompt_extended.md", c.Metadata.PromptFile)
}

func TestEmbeddedPromptsHavePlaceholder(t *testing.T) {
	for _, preset := range []string{PresetStandard, PresetExtended} {
		text, _, err := Prompt{Preset: preset}.Render([]string{"[BBC] x"})
		require.NoError(t, err, preset)
		assert.Contains(t, text, "- [BBC] x")
	}
}

func TestDigestIsOrderIndependent(t *testing.T) {
	a, err := Digest(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	b, err := Digest(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Digest(map[string]string{"a": "1", "b": "3"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
