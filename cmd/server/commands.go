package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prismatica/internal/app"
	"prismatica/internal/content"
	"prismatica/internal/events"
	"prismatica/internal/logger"
	"prismatica/internal/ratelimit"
	"prismatica/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with the content and article schedulers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()
	cfg := d.cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(cfg.RateLimit.Max, cfg.RateLimit.Window)
	chatHandler, err := d.chatHandler(limiter)
	if err != nil {
		return err
	}

	jobs := []*scheduler.Scheduler{
		scheduler.New(d.job.Run, scheduler.Options{
			Name:        "content",
			Interval:    cfg.Content.Interval,
			RunTimeout:  cfg.Content.RunTimeout,
			Logger:      logger.Named("scheduler"),
			Sink:        d.sink,
			SkippedKind: events.GenerationSkipped,
			PanicKind:   events.GenerationPanic,
		}),
	}
	if cfg.Articles.Enabled {
		jobs = append(jobs, scheduler.New(d.syncer.Run, scheduler.Options{
			Name:       "articles",
			Interval:   cfg.Articles.Interval,
			RunTimeout: cfg.Content.RunTimeout,
			Logger:     logger.Named("scheduler"),
			Sink:       d.sink,
		}))
	}

	api, page := d.policies()
	srv, err := app.NewServer(app.Options{
		Content:    d.content,
		APIPolicy:  api,
		PagePolicy: page,
		Chat:       chatHandler,
		Limiter:    limiter,
		SweepEvery: cfg.RateLimit.Sweep,
		Articles:   d.arts,
		Jobs:       jobs,
		Logger:     logger.Named("http"),
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Start(ctx)
		}()
	}

	err = srv.ListenAndServe(ctx, cfg.Listen)
	stop()
	wg.Wait()
	return err
}

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Run one content generation and print the cache file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), d.cfg.Content.RunTimeout)
			defer cancel()
			if err := d.job.Run(ctx); err != nil {
				return err
			}
			c, err := d.content.Read()
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	}
}

func newShowCmd() *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print what the site would serve right now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.Close()

			api, page := d.policies()
			var p content.Policy
			switch policy {
			case "api":
				p = api
			case "page":
				p = page
			default:
				return fmt.Errorf("unknown policy %q (valid: api, page)", policy)
			}
			return printJSON(d.content.Load(p))
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "api", "staleness policy: api or page")
	return cmd
}

func newSyncArticlesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-articles",
		Short: "Import new newsletter posts into the article store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := d.syncer.Sync(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func newRunsCmd() *cobra.Command {
	var (
		limit int
		kind  string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent job events from the diagnostics store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.Close()
			if d.db == nil {
				return fmt.Errorf("events.db_path is not set")
			}

			list, err := d.db.Recent(cmd.Context(), events.Kind(kind), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tKIND\tRUN\tDURATION\tFALLBACK\tERROR")
			for _, e := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					e.At.Local().Format(time.DateTime), e.Kind, short(e.RunID), e.Duration.Round(time.Millisecond), e.FallbackUsed, e.Error)
			}
			if err := w.Flush(); err != nil {
				logger.Log.Warn("Failed to flush output", zap.Error(err))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show")
	cmd.Flags().StringVar(&kind, "kind", "", "only show events of this kind (e.g. generation.fallback)")
	return cmd
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
