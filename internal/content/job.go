package content

import (
	"context"
	"time"

	"go.uber.org/zap"

	"prismatica/internal/events"
)

// Job is one scheduled generate-and-write cycle.
type Job struct {
	gen   *Generator
	store *Store
	sink  events.Sink
	log   *zap.Logger
}

func NewJob(gen *Generator, store *Store, sink events.Sink, log *zap.Logger) *Job {
	if sink == nil {
		sink = events.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Job{gen: gen, store: store, sink: sink, log: log}
}

// Run generates content and replaces the cache file. Generation failures are
// already folded into fallback content. A run whose context ends before the
// write leaves the existing file alone and returns the context error.
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	c := j.gen.Generate(ctx)

	if err := ctx.Err(); err != nil {
		ev := events.New(events.GenerationCancelled, c.Metadata.RunID)
		ev.Duration = time.Since(start)
		ev.Error = err.Error()
		j.sink.Emit(context.WithoutCancel(ctx), ev)
		j.log.Warn("Run cancelled, keeping existing cache",
			zap.String("run_id", c.Metadata.RunID), zap.Error(err))
		return err
	}

	kind := events.GenerationSucceeded
	if c.FallbackUsed {
		kind = events.GenerationFallback
	}
	ev := events.New(kind, c.Metadata.RunID)
	ev.FallbackUsed = c.FallbackUsed
	ev.Error = c.Metadata.Error
	ev.Attrs = map[string]any{
		"headlines": c.Metadata.HeadlinesAnalyzed,
		"model":     c.Metadata.Model,
		"digest":    c.Metadata.ContentDigest,
	}
	if len(c.Metadata.Sources) > 0 {
		ev.Attrs["sources"] = c.Metadata.Sources
	}

	if err := j.store.Write(c); err != nil {
		j.log.Error("Failed to write content cache", zap.String("run_id", c.Metadata.RunID), zap.Error(err))
		failed := events.New(events.CacheWriteFailed, c.Metadata.RunID)
		failed.Duration = time.Since(start)
		failed.Error = err.Error()
		j.sink.Emit(ctx, failed)
		return err
	}

	ev.Duration = time.Since(start)
	j.sink.Emit(ctx, ev)
	j.log.Info("Content cache updated",
		zap.String("run_id", c.Metadata.RunID),
		zap.Bool("fallback_used", c.FallbackUsed),
		zap.String("path", j.store.Path()))
	return nil
}
