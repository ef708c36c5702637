package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"prismatica/internal/articles"
	"prismatica/internal/chat"
	"prismatica/internal/config"
	"prismatica/internal/content"
	"prismatica/internal/events"
	"prismatica/internal/fetch"
	"prismatica/internal/headlines"
	"prismatica/internal/llm"
	"prismatica/internal/logger"
	"prismatica/internal/ratelimit"
)

// deps is everything the commands share, built once from config.
type deps struct {
	cfg     *config.Config
	log     *zap.Logger
	keys    *config.Keys
	client  *fetch.Client
	api     *http.Client
	db      *events.SQLiteSink
	sink    events.Sink
	content *content.Store
	job     *content.Job
	arts    *articles.Store
	syncer  *articles.Syncer
}

func setup() (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.InitLogger(cfg.Env, cfg.LogLevel)
	log := logger.Log

	d := &deps{cfg: cfg, log: log, keys: config.NewKeys(cfg.Keys)}
	for svc, src := range d.keys.Report() {
		if src == config.KeyMissing {
			log.Warn("API key not configured; calls for this service will fail", zap.String("service", string(svc)))
			continue
		}
		log.Info("API key available", zap.String("service", string(svc)), zap.String("source", string(src)))
	}

	d.client = fetch.NewClient(fetch.ClientOptions{
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
		RetryMax:  cfg.HTTP.RetryMax,
		Logger:    logger.Named("http"),
	})
	d.api = fetch.NewAPIClient(fetch.ClientOptions{
		UserAgent: cfg.HTTP.UserAgent,
		RetryMax:  cfg.HTTP.RetryMax,
		Logger:    logger.Named("llm"),
	})

	sinks := events.Multi{events.NewLogSink(logger.Named("events"))}
	if cfg.Events.DBPath != "" {
		db, err := events.OpenSQLite(cfg.Events.DBPath, logger.Named("events"))
		if err != nil {
			return nil, err
		}
		d.db = db
		sinks = append(sinks, db)
	}
	d.sink = sinks

	d.content = content.NewStore(content.StoreOptions{
		Path:   cfg.Content.CachePath,
		Logger: logger.Named("cache"),
	})

	gen, err := d.generator()
	if err != nil {
		d.Close()
		return nil, err
	}
	d.job = content.NewJob(gen, d.content, d.sink, logger.Named("content"))

	d.arts = articles.NewStore(cfg.Articles.Path)
	d.syncer = articles.NewSyncer(articles.SyncOptions{
		FeedURL:       cfg.Articles.FeedURL,
		DefaultAuthor: cfg.Articles.DefaultAuthor,
		Store:         d.arts,
		Client:        d.client.StandardClient(),
		UserAgent:     d.client.UserAgent(),
		Extractor:     articles.NewPageExtractor(d.client),
		Logger:        logger.Named("articles"),
		Sink:          d.sink,
	})
	return d, nil
}

func (d *deps) generator() (*content.Generator, error) {
	cfg := d.cfg
	sections, err := content.SectionsFor(cfg.Content.SectionsPreset)
	if err != nil {
		return nil, err
	}

	sources := make([]headlines.Source, 0, len(cfg.Headlines.Sources))
	for _, s := range cfg.Headlines.Sources {
		sources = append(sources, headlines.Source{Name: s.Name, URL: s.URL})
	}
	fetcher := headlines.New(headlines.Options{
		Sources:   sources,
		PerSource: cfg.Headlines.PerSource,
		Timeout:   cfg.Headlines.Timeout,
		Client:    d.client.StandardClient(),
		UserAgent: d.client.UserAgent(),
		Logger:    logger.Named("headlines"),
	})

	completer, err := llm.New(llm.Options{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Key:      d.keys.Func(config.ServiceContent),
		Client:   d.api,
		Timeout:  cfg.Content.GenerationTimeout,
	})
	if err != nil {
		return nil, err
	}

	return content.NewGenerator(content.GeneratorOptions{
		Headlines:   fetcher,
		LLM:         completer,
		Model:       cfg.Content.Model,
		MaxTokens:   cfg.Content.MaxTokens,
		Temperature: cfg.Content.Temperature,
		Timeout:     cfg.Content.GenerationTimeout,
		Expiry:      cfg.Content.Expiry,
		Sections:    sections,
		Prompt:      content.Prompt{Path: cfg.Content.PromptPath, Preset: cfg.Content.SectionsPreset},
		Logger:      logger.Named("generator"),
	}), nil
}

func (d *deps) chatHandler(limiter *ratelimit.Limiter) (*chat.Handler, error) {
	cfg := d.cfg
	prompt, err := chat.SystemPrompt(cfg.Chat.SystemPromptPath)
	if err != nil {
		return nil, err
	}
	completer, err := llm.New(llm.Options{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Key:      d.keys.Func(config.ServiceChat),
		Client:   d.api,
		Timeout:  cfg.Chat.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return chat.NewHandler(chat.Options{
		LLM:          completer,
		Limiter:      limiter,
		Model:        cfg.Chat.Model,
		MaxTokens:    cfg.Chat.MaxTokens,
		Timeout:      cfg.Chat.Timeout,
		SystemPrompt: prompt,
		Logger:       logger.Named("chat"),
	}), nil
}

func (d *deps) policies() (api, page content.Policy) {
	api = content.Policy{Name: content.PolicyAPI.Name, MaxAge: d.cfg.Staleness.API}
	page = content.Policy{Name: content.PolicyPage.Name, MaxAge: d.cfg.Staleness.Page}
	return api, page
}

func (d *deps) Close() {
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.log.Warn("Failed to close events db", zap.Error(err))
		}
	}
}
