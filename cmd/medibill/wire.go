package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/lamim/medibill/internal/api"
	"github.com/lamim/medibill/internal/config"
	"github.com/lamim/medibill/internal/explainer"
	"github.com/lamim/medibill/internal/extract"
	"github.com/lamim/medibill/internal/llm"
	"github.com/lamim/medibill/internal/memo"
	"github.com/lamim/medibill/internal/metrics"
	"github.com/lamim/medibill/internal/store"
	"github.com/lamim/medibill/internal/util"
	"github.com/lamim/medibill/internal/writer"
	"github.com/lamim/medibill/pkg/models"
)

// Canned responses for --dry-run
const (
	dryRunExplanation = `{"explanation": "This charge covers a routine hospital service. (dry run)", ` +
		`"insurance_status": "PARTIALLY_COVERED", "insurance_note": "Coverage depends on your policy. (dry run)", ` +
		`"disclaimer": "Dry run output, no model was called."}`
	dryRunIllustration = "A friendly nurse explains the charge to a family at the hospital billing desk. (dry run)"
)

// app holds everything a command needs
type app struct {
	cfg     *config.Config
	secrets *config.Secrets
	logger  *slog.Logger
	metrics *metrics.Collector
	repo    store.Repository
	service *explainer.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to release resource", "error", err)
		}
	}
}

func (a *app) defaultPreferences() models.Preferences {
	lang, _ := util.ParseLanguage(a.cfg.Preferences.Language)
	return models.Preferences{Language: lang, FamilyMode: a.cfg.DefaultFamilyMode()}
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// loadConfig reads the config file. A missing default config.toml falls back to defaults.
func loadConfig() (*config.Config, *config.Secrets, *slog.Logger, error) {
	logger := writer.NewConsoleLogger(os.Stderr, logLevel())

	cfg, secrets, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) && configPath == "config.toml" {
		logger.Warn("No config.toml found, using defaults")
		cfg = config.Default()
		secrets, err = config.LoadSecrets()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if verbose {
		for provider, key := range secrets.APIKeys {
			if key != "" {
				logger.Debug("Loaded API key", "provider", provider, "length", len(key))
			}
		}
	}

	return cfg, secrets, logger, nil
}

func newApp(ctx context.Context, withService bool) (*app, error) {
	cfg, secrets, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, secrets, logger, withService)
}

// buildApp wires the repository and, when withService is set, the memo store,
// generators and explainer service.
func buildApp(ctx context.Context, cfg *config.Config, secrets *config.Secrets, logger *slog.Logger, withService bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		secrets: secrets,
		logger:  logger,
		metrics: metrics.NewCollector(logger),
	}

	repo, err := a.openRepository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.repo = repo

	if withService {
		service, err := a.buildService(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.service = service
	}

	return a, nil
}

// openRepository uses Postgres when DATABASE_URL is set, otherwise an
// in-memory store loaded from database.seed_file
func (a *app) openRepository(ctx context.Context) (store.Repository, error) {
	if a.secrets.DatabaseURL != "" {
		pg, err := openPostgres(ctx, a.cfg, a.secrets, a.logger, a.cfg.Database.AutoMigrate)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	}

	if a.cfg.Database.SeedFile == "" {
		return nil, errors.New("no bill store configured: set DATABASE_URL or database.seed_file")
	}
	items, err := store.LoadSeedFile(a.cfg.Database.SeedFile)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Using in-memory bill store", "seed_file", a.cfg.Database.SeedFile, "items", len(items))
	return store.NewMemory(items...), nil
}

func openPostgres(ctx context.Context, cfg *config.Config, secrets *config.Secrets, logger *slog.Logger, migrate bool) (*store.Postgres, error) {
	if secrets.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable must be set")
	}

	pg, err := store.Open(secrets.DatabaseURL, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pg.Ping(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if migrate {
		if err := store.Migrate(ctx, pg.DB(), logger); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return pg, nil
}

func (a *app) openMemo(ctx context.Context) (memo.Store, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheBackendRedis:
		if a.secrets.RedisURL == "" {
			return nil, errors.New("REDIS_URL environment variable must be set for cache.backend = redis")
		}
		ttl := time.Duration(a.cfg.Cache.TTLSeconds) * time.Second
		r, err := memo.NewRedis(ctx, a.secrets.RedisURL, a.cfg.Cache.KeyPrefix, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	default:
		return memo.NewMemory(a.cfg.Cache.Size)
	}
}

func (a *app) buildService(ctx context.Context) (*explainer.Service, error) {
	memoStore, err := a.openMemo(ctx)
	if err != nil {
		return nil, err
	}

	var explain, illustrate llm.Generator
	if dryRun {
		a.logger.Info("Dry run: using canned model responses")
		explain = llm.NewStatic(dryRunExplanation)
		illustrate = llm.NewStatic(dryRunIllustration)
	} else {
		pool := api.NewRateLimiterPool(a.cfg.ProviderBurstPercent)
		if len(a.cfg.ProviderRateLimits) > 0 {
			pool.SetProviderRateLimits(a.cfg.ProviderRateLimits)
			a.logger.Info("Provider rate limits configured",
				"providers", a.cfg.ProviderRateLimits,
				"burst_percent", a.cfg.ProviderBurstPercent)
		}

		explain, err = llm.New(ctx, a.cfg.ModelFor(config.RoleExplain), a.secrets,
			a.cfg.PromptTemplates.ExplanationSystemPrompt, pool, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create explain model: %w", err)
		}

		// Without a dedicated model the explain generator also illustrates
		if mc, ok := a.cfg.Models[config.RoleIllustrate]; ok {
			illustrate, err = llm.New(ctx, mc, a.secrets, "", pool, a.logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create illustrate model: %w", err)
			}
		}
	}

	return explainer.New(explainer.Options{
		Explainer:   explain,
		Illustrator: illustrate,
		Extractor:   newExtractor(a.cfg.Generation),
		Memo:        memoStore,
		Templates: explainer.Templates{
			Explanation:  a.cfg.PromptTemplates.Explanation,
			Illustration: a.cfg.PromptTemplates.Illustration,
		},
		DefaultDisclaimer: a.cfg.DefaultDisclaimer,
		Metrics:           a.metrics,
		Logger:            a.logger,
	})
}

// newExtractor applies generation.scan_mode and generation.sanitize_json.
// Config validation has already rejected unknown scan modes.
func newExtractor(gen config.GenerationConfig) *extract.Extractor {
	mode, _ := extract.ParseScanMode(gen.ScanMode)
	return extract.New(extract.WithScanMode(mode), extract.WithSanitize(gen.SanitizeJSON))
}
