package content

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Placeholder is replaced with the headline list when a prompt is rendered.
const Placeholder = "{{HEADLINES}}"

// ErrTemplate is returned when the prompt template cannot be used.
var ErrTemplate = errors.New("prompt template")

//go:embed assets/*
var assets embed.FS

// Prompt renders the generation prompt. Path, when set, is read on every
// render so edits take effect on the next run without a restart.
type Prompt struct {
	Path   string
	Preset string
}

// Render returns the prompt text and the name of the template it came from.
func (p Prompt) Render(headlines []string) (string, string, error) {
	tmpl, name, err := p.load()
	if err != nil {
		return "", name, err
	}
	if !strings.Contains(tmpl, Placeholder) {
		return "", name, fmt.Errorf("%w: %s has no %s placeholder", ErrTemplate, name, Placeholder)
	}

	var b strings.Builder
	for i, h := range headlines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(h)
	}
	return strings.Replace(tmpl, Placeholder, b.String(), 1), name, nil
}

func (p Prompt) load() (string, string, error) {
	if p.Path != "" {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return "", p.Path, fmt.Errorf("%w: %w", ErrTemplate, err)
		}
		return string(data), p.Path, nil
	}

	name := "assets/prompt_standard.md"
	if p.Preset == PresetExtended {
		name = "assets/prompt_extended.md"
	}
	data, err := assets.ReadFile(name)
	if err != nil {
		return "", name, fmt.Errorf("%w: %w", ErrTemplate, err)
	}
	return string(data), name, nil
}
