// Package app assembles the scan stack from a Config. The API server, the
// bot and the CLI all start from Build.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"gradescan/api/internal/cache"
	"gradescan/api/internal/config"
	"gradescan/api/internal/handle"
	"gradescan/api/internal/ocr"
	"gradescan/api/internal/ocr/gemini"
	"gradescan/api/internal/ocr/prompt"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/store"
	"gradescan/api/internal/suggest"
)

// Backend is a records store that also keeps the scan history.
type Backend interface {
	store.Store
	store.HistoryStore
}

type App struct {
	Config    *config.Config
	Store     Backend
	Cache     cache.Client
	Scanner   *scan.Scanner
	Suggester *suggest.Engine
	Pipeline  *service.Pipeline
	Saver     *service.Saver
	Log       zerolog.Logger

	closers []io.Closer
}

// Build opens the store and cache and wires the pipeline. A missing Gemini
// key is not an error: the scanner starts degraded and only returns manual
// stubs.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.Store = st
	if c, ok := st.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	c, err := openCache(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c != nil {
		a.Cache = c
		a.closers = append(a.closers, c)
	}

	opts := scan.DefaultOptions()
	if cfg.Scan.PromptDir != "" {
		set, err := prompt.Load(cfg.Scan.PromptDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		opts.Prompts = set
	}
	opts.Temperature = cfg.Gemini.Temperature
	opts.SingleTimeout = cfg.Scan.SingleTimeout
	opts.MultiTimeout = cfg.Scan.MultiTimeout
	opts.EscalateSingle = cfg.Scan.EscalateSingle

	a.Scanner = scan.New(Engines(cfg.Gemini), opts, log)
	if err := a.Scanner.Initialize(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Suggester = suggest.New(st, log)
	a.Pipeline = service.NewPipeline(a.Scanner, a.Suggester, st, a.Cache, service.PipelineOptions{
		AutoApplyThreshold: cfg.Scan.AutoApplyThreshold,
		CacheTTL:           cfg.Cache.TTL,
	}, log)
	a.Saver = service.NewSaver(st, log)
	return a, nil
}

// Engines builds the Gemini tiers. Light and Capable are left out when no
// model is configured for them.
func Engines(cfg config.GeminiConfig) *ocr.Engines {
	if cfg.APIKey == "" {
		return &ocr.Engines{}
	}
	engs := &ocr.Engines{Default: gemini.New(cfg.APIKey, cfg.Model)}
	if cfg.LightModel != "" {
		engs.Light = gemini.New(cfg.APIKey, cfg.LightModel)
	}
	if cfg.CapableModel != "" {
		engs.Capable = gemini.New(cfg.APIKey, cfg.CapableModel)
	}
	return engs
}

// HandleDeps returns the HTTP handler collaborators backed by a.
func (a *App) HandleDeps() handle.Deps {
	return handle.Deps{
		Pipeline:           a.Pipeline,
		Suggester:          a.Suggester,
		Saver:              a.Saver,
		History:            a.Store,
		Records:            a.Store,
		Status:             a.Scanner,
		AutoApplyThreshold: a.Config.Scan.AutoApplyThreshold,
		Log:                a.Log,
	}
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Backend, error) {
	driver, dsn := cfg.StoreDSN()
	if driver == "memory" {
		log.Warn().Msg("using in-memory store, records are lost on exit")
		return store.NewMemoryStore(), nil
	}
	st, err := store.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	summary := dsn
	if driver == "pgx" {
		summary = config.SafeDSNSummary(dsn)
	}
	log.Info().Str("driver", driver).Str("dsn", summary).Msg("store connected")
	return st, nil
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Client, error) {
	switch cfg.Cache.Driver {
	case "redis":
		r := cfg.Cache.Redis
		c, err := cache.NewRedisClient(ctx, cache.RedisConfig{Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: r.Prefix})
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		return c, nil
	case "none":
		return nil, nil
	}
	return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
}
