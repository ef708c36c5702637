// Package events records structured diagnostics for background jobs so that
// failures swallowed into fallback content stay observable.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind classifies an event.
type Kind string

const (
	GenerationSucceeded Kind = "generation.succeeded"
	GenerationFallback  Kind = "generation.fallback"
	GenerationSkipped   Kind = "generation.skipped"
	GenerationPanic     Kind = "generation.panic"
	GenerationCancelled Kind = "generation.cancelled"
	CacheWriteFailed    Kind = "cache.write_failed"
	ArticlesSynced      Kind = "articles.synced"
	ArticlesFailed      Kind = "articles.failed"
)

// Event is one diagnostic record.
type Event struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	RunID        string         `json:"runId,omitempty"`
	At           time.Time      `json:"at"`
	Duration     time.Duration  `json:"duration"`
	FallbackUsed bool           `json:"fallbackUsed"`
	Error        string         `json:"error,omitempty"`
	Attrs        map[string]any `json:"attrs,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(kind Kind, runID string) Event {
	return Event{
		ID:    uuid.NewString(),
		Kind:  kind,
		RunID: runID,
		At:    time.Now().UTC(),
	}
}

// Sink receives events. Emit must not block for long and never fails the
// caller; sinks deal with their own errors.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// LogSink writes events as structured log entries.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, e Event) {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("kind", string(e.Kind)),
		zap.Duration("duration", e.Duration),
		zap.Bool("fallback_used", e.FallbackUsed),
	}
	if e.RunID != "" {
		fields = append(fields, zap.String("run_id", e.RunID))
	}
	if len(e.Attrs) > 0 {
		fields = append(fields, zap.Any("attrs", e.Attrs))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
		s.log.Warn("Diagnostic event", fields...)
		return
	}
	s.log.Info("Diagnostic event", fields...)
}
