// Package scheduler runs a background job at start-up and then on a fixed
// interval, never more than one run at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"prismatica/internal/events"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type Options struct {
	Name       string
	Interval   time.Duration
	RunTimeout time.Duration
	Logger     *zap.Logger
	Sink       events.Sink
	// SkippedKind and PanicKind name the events emitted when a tick is
	// skipped or a run panics. Empty disables the event.
	SkippedKind events.Kind
	PanicKind   events.Kind
}

// Status is a snapshot for health reporting.
type Status struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	Runs       int64     `json:"runs"`
	Skipped    int64     `json:"skipped"`
	LastStart  time.Time `json:"lastStart,omitzero"`
	LastFinish time.Time `json:"lastFinish,omitzero"`
	LastError  string    `json:"lastError,omitempty"`
}

type Scheduler struct {
	job  Job
	opts Options
	log  *zap.Logger
	sink events.Sink

	running atomic.Bool
	wg      sync.WaitGroup

	mu     sync.Mutex
	status Status
}

func New(job Job, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 2 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.Discard{}
	}
	return &Scheduler{
		job:    job,
		opts:   opts,
		log:    log.With(zap.String("job", opts.Name)),
		sink:   sink,
		status: Status{Name: opts.Name},
	}
}

// Start runs the job immediately and then every interval until ctx is
// cancelled. It returns once any in-flight run has finished.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Scheduler started", zap.Duration("interval", s.opts.Interval))
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.spawn(ctx)
	for {
		select {
		case <-ticker.C:
			s.spawn(ctx)
		case <-ctx.Done():
			s.log.Info("Scheduler stopping")
			return
		}
	}
}

func (s *Scheduler) spawn(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(ctx)
	}()
}

// RunOnce runs the job now unless a run is already in flight, in which case
// it records the skip and returns false.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.status.Skipped++
		s.mu.Unlock()
		s.log.Warn("Previous run still in progress, skipping")
		if s.opts.SkippedKind != "" {
			ev := events.New(s.opts.SkippedKind, "")
			ev.Attrs = map[string]any{"job": s.opts.Name}
			s.sink.Emit(ctx, ev)
		}
		return false
	}
	defer s.running.Store(false)

	start := time.Now()
	s.mu.Lock()
	s.status.LastStart = start
	s.mu.Unlock()

	err := s.run(ctx)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastFinish = time.Now()
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Scheduled run failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
	} else {
		s.log.Debug("Scheduled run finished", zap.Duration("duration", time.Since(start)))
	}
	return true
}

var errPanic = errors.New("job panicked")

func (s *Scheduler) run(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
			if s.opts.PanicKind != "" {
				ev := events.New(s.opts.PanicKind, "")
				ev.Error = err.Error()
				ev.Attrs = map[string]any{"job": s.opts.Name}
				s.sink.Emit(ctx, ev)
			}
		}
	}()
	return s.job(ctx)
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Running = s.running.Load()
	return st
}
