// Package app builds the flowerstory object graph from configuration. Both
// the API server and the CLI start from here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pinkittys/flowerstory/internal/cache"
	"github.com/pinkittys/flowerstory/internal/catalog"
	"github.com/pinkittys/flowerstory/internal/config"
	"github.com/pinkittys/flowerstory/internal/extract"
	"github.com/pinkittys/flowerstory/internal/gate"
	"github.com/pinkittys/flowerstory/internal/llm"
	"github.com/pinkittys/flowerstory/internal/match"
	"github.com/pinkittys/flowerstory/internal/observability"
	"github.com/pinkittys/flowerstory/internal/recommend"
	"github.com/pinkittys/flowerstory/internal/storage"
)

// Options adjust the build for a particular binary.
type Options struct {
	// RequireDatabase opens the database even when neither history nor the
	// database catalog source needs it.
	RequireDatabase bool
	// DuplicateWait is passed to the recommend service.
	DuplicateWait time.Duration
}

// App holds the wired components.
type App struct {
	Config *config.Config
	Logger *observability.Logger

	DB          *sql.DB
	CatalogRepo *storage.CatalogRepository
	History     *storage.HistoryRepository

	Cache    cache.Client
	Provider llm.Provider

	Rules         *extract.RuleTable
	Extractor     *extract.Extractor
	Matcher       *match.Matcher
	Gate          *gate.Gate
	Catalog       *catalog.Store
	CatalogSource catalog.Source
	Service       *recommend.Service
}

// New wires every component described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	a := &App{Config: cfg, Logger: logger}

	if opts.RequireDatabase || cfg.Database.History || cfg.Catalog.Source == "database" {
		db, err := storage.OpenFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.DB = db
		a.CatalogRepo = storage.NewCatalogRepository(db)
		a.History = storage.NewHistoryRepository(db)
		logger.Info().Str("driver", cfg.Database.Driver).Msg("Database ready")
	}

	a.Cache = newCache(cfg, logger)

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if provider != nil && cfg.LLM.CacheResponses {
		provider = llm.NewCachingProvider(logger, provider, a.Cache, cfg.Cache.TTL,
			llm.WithReplyValidator(extract.ValidateReply))
	}
	a.Provider = provider

	rules, err := extract.LoadRuleTable(cfg.Extraction.RulesPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load rule table: %w", err)
	}
	a.Rules = rules

	var strategies []extract.Strategy
	if provider != nil {
		strategies = append(strategies,
			extract.NewFullStrategy(provider, rules, extract.ModelConfig{
				Model:   cfg.LLM.Model,
				Timeout: cfg.LLM.FullTimeout,
			}),
			extract.NewLightweightStrategy(provider, rules, extract.ModelConfig{
				Model:   cfg.LLM.LightweightModel,
				Timeout: cfg.LLM.LightweightTimeout,
			}),
		)
	}
	a.Extractor = extract.New(logger, rules, extract.Config{
		Thresholds: extract.Thresholds{
			RuleMax:        cfg.Extraction.RuleMaxLength,
			LightweightMax: cfg.Extraction.LightweightMaxLength,
		},
	}, strategies...)

	a.Matcher = match.New(match.DefaultWeights().WithOverrides(cfg.Scoring), rules)

	src, err := a.catalogSource()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.CatalogSource = src
	cat, err := a.loadCatalog(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog = catalog.NewStore(logger, cat)

	a.Gate = gate.New(logger, gate.Config{
		DebounceWindow: cfg.Gate.DebounceWindow,
		StaleInFlight:  cfg.Gate.StaleInFlight,
	})

	svcOpts := recommend.Options{DuplicateWait: opts.DuplicateWait}
	if cfg.Database.History && a.History != nil {
		svcOpts.History = a.History
	}
	a.Service = recommend.New(logger, a.Gate, a.Extractor, a.Matcher, a.Catalog, svcOpts)

	logger.Info().
		Str("provider", cfg.LLM.Provider).
		Str("catalog_source", src.Name()).
		Int("candidates", cat.Len()).
		Msg("Recommender ready")
	return a, nil
}

// StartBackground starts the gate sweeper. It stops when ctx is done.
func (a *App) StartBackground(ctx context.Context) {
	go a.Gate.Run(ctx, a.Config.Gate.SweepInterval)
}

// ReloadCatalog re-reads the configured catalog source and swaps it in.
func (a *App) ReloadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	return a.Catalog.Reload(ctx, a.CatalogSource)
}

// Close waits for pending history writes, then releases the cache and the
// database.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Wait()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Cache close failed")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Database close failed")
		}
	}
}

func (a *App) catalogSource() (catalog.Source, error) {
	switch a.Config.Catalog.Source {
	case "", "embedded":
		return catalog.EmbeddedSource{}, nil
	case "file":
		return catalog.FileSource{Path: a.Config.Catalog.Path}, nil
	case "database":
		if a.CatalogRepo == nil {
			return nil, errors.New("catalog source database requires a database")
		}
		return a.CatalogRepo, nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", a.Config.Catalog.Source)
	}
}

// loadCatalog loads the initial catalog. An empty database table is seeded
// from the embedded catalog.
func (a *App) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cat, err := a.CatalogSource.Load(ctx)
	if err == nil {
		return cat, nil
	}
	if a.CatalogRepo == nil || !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load catalog from %s: %w", a.CatalogSource.Name(), err)
	}

	def, err := catalog.Default()
	if err != nil {
		return nil, err
	}
	if err := a.CatalogRepo.ReplaceAll(ctx, def.Candidates()); err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	a.Logger.Info().Int("candidates", def.Len()).Msg("Seeded empty catalog table")
	return def, nil
}

func newCache(cfg *config.Config, logger *observability.Logger) cache.Client {
	if cfg.Cache.Driver == "redis" {
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err == nil {
			return rc
		}
		logger.Warn().Err(err).Str("addr", cfg.Cache.Redis.Addr).Msg("Redis unavailable, using in-memory cache")
	}
	return cache.NewMemoryClient(cfg.Cache.MaxEntries)
}

func newProvider(ctx context.Context, cfg *config.Config, logger *observability.Logger) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "", "none":
		return nil, nil
	case "openrouter":
		retry := llm.DefaultRetryConfig()
		retry.MaxRetries = cfg.LLM.MaxRetries
		p, err := llm.NewOpenRouterProvider(logger, llm.OpenRouterConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Retry:   retry,
		})
		if err != nil {
			return nil, fmt.Errorf("create openrouter provider: %w", err)
		}
		return p, nil
	case "gemini":
		model := cfg.LLM.Model
		if strings.Contains(model, "/") {
			// Router-style names belong to openrouter; use the Gemini default.
			model = ""
		}
		p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey: cfg.LLM.APIKey,
			Model:  model,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
