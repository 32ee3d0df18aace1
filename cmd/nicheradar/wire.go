package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nicheradar/nicheradar/internal/catalog"
	"github.com/nicheradar/nicheradar/internal/config"
	"github.com/nicheradar/nicheradar/internal/discovery"
	"github.com/nicheradar/nicheradar/internal/evidence"
	"github.com/nicheradar/nicheradar/internal/fetchkit"
	"github.com/nicheradar/nicheradar/internal/fingerprint"
	"github.com/nicheradar/nicheradar/internal/generate"
	"github.com/nicheradar/nicheradar/internal/progress"
	"github.com/nicheradar/nicheradar/internal/research"
	"github.com/nicheradar/nicheradar/internal/scraper"
	"github.com/nicheradar/nicheradar/internal/storage"
	"github.com/nicheradar/nicheradar/internal/storage/jsonbackend"
	"github.com/nicheradar/nicheradar/internal/storage/memory"
	"github.com/nicheradar/nicheradar/internal/storage/postgres"
	"github.com/nicheradar/nicheradar/internal/storage/sqlite"
	"github.com/nicheradar/nicheradar/internal/transcript"
	"github.com/nicheradar/nicheradar/pkg/httpclient"
	"github.com/nicheradar/nicheradar/pkg/ratelimit"
)

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// pipeline bundles everything a command needs to run research jobs.
type pipeline struct {
	cfg         *config.Config
	orch        *research.Orchestrator
	broadcaster *progress.Broadcaster
	repo        storage.Repository
	logger      *slog.Logger
}

func (p *pipeline) close() {
	if err := p.repo.Close(); err != nil {
		p.logger.Warn("closing repository", "err", err)
	}
}

// noProducts stands in when no product-data API key is configured. The
// pipeline only calls it when a request carries catalog ids, and those jobs
// simply proceed without product evidence.
type noProducts struct{}

func (noProducts) Fetch(context.Context, []string, string) []evidence.Product { return nil }

func buildPipeline(ctx context.Context, logger *slog.Logger) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	fetcher, err := fetchkit.New(fetchkit.Config{
		APIKey:         cfg.Fetch.APIKey,
		BaseURL:        cfg.Fetch.BaseURL,
		Timeout:        cfg.Fetch.Timeout,
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		CountryCode:    cfg.Fetch.CountryCode,
		Limiter:        ratelimit.NewLimiter(cfg.Fetch.RatePerSecond, 0.2),
		Logger:         logger,
		DirectFallback: cfg.Fetch.DirectFallback,
		Fingerprint:    fingerprint.Profile(cfg.Fetch.Fingerprint),
	})
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	searchClient, err := httpclient.New(httpclient.Config{
		Timeout:      15 * time.Second,
		MaxRedirects: 3,
	})
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("create search client: %w", err)
	}
	sources := discovery.New(
		discovery.NewGoogleCSE(cfg.Search.APIKey, cfg.Search.CX, "", searchClient, logger),
		logger)

	pages := scraper.New(fetcher, scraper.Config{}, logger)
	videos := transcript.New(fetcher, transcript.Config{}, logger)

	var products research.ProductFetcher = noProducts{}
	if cfg.Catalog.APIKey != "" {
		client, err := catalog.New(catalog.Config{
			APIKey:            cfg.Catalog.APIKey,
			Host:              cfg.Catalog.Host,
			RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
			IncludeReviews:    cfg.Catalog.IncludeReviews,
		}, logger)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("create catalog client: %w", err)
		}
		products = client
	} else {
		logger.Warn("no catalog API key configured, product data disabled")
	}

	generator, err := generate.NewClient(generate.Config{
		APIKey:  cfg.Generate.APIKey,
		BaseURL: cfg.Generate.BaseURL,
		Referer: cfg.Generate.Referer,
		AppName: cfg.Generate.AppName,
	}, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("create generation client: %w", err)
	}

	broadcaster := progress.NewBroadcaster(logger)

	orch := research.New(research.Deps{
		Sources:   sources,
		Pages:     pages,
		Videos:    videos,
		Products:  products,
		Generator: generator,
		Progress:  broadcaster,
		Store:     repo,
	}, research.Config{
		WebSources:   cfg.Research.WebSources,
		VideoSources: cfg.Research.VideoSources,
		Models: research.ModelCatalog{
			Basic:           cfg.Models.Basic,
			Advanced:        cfg.Models.Advanced,
			AdvancedChoices: cfg.Models.AdvancedChoices,
		},
	}, logger)

	return &pipeline{
		cfg:         cfg,
		orch:        orch,
		broadcaster: broadcaster,
		repo:        repo,
		logger:      logger,
	}, nil
}

func openRepository(ctx context.Context, cfg config.StorageConfig) (storage.Repository, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	case "json":
		return jsonbackend.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
