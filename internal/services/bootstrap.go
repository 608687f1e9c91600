package services

import (
	"log/slog"

	"github.com/miradorstack/kpi-recon/internal/cache"
	"github.com/miradorstack/kpi-recon/internal/config"
	"github.com/miradorstack/kpi-recon/internal/engine"
	"github.com/miradorstack/kpi-recon/internal/repo"
)

// NewCacheProvider picks the definitions cache described by cfg. A valkey
// backend that cannot be reached degrades to no caching.
func NewCacheProvider(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	if cfg.Backend == "memory" {
		return cache.NewMemoryProvider()
	}

	provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
		KeyPrefix:    cfg.KeyPrefix,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable", slog.String("addr", cfg.Addr), slog.Any("error", err))
		return cache.NoopProvider{}
	}
	return provider
}

// PeakConfigFrom maps the report settings onto the peak analyzer.
func PeakConfigFrom(cfg config.ReportConfig) engine.PeakConfig {
	return engine.PeakConfig{
		Morning:   engine.HalfDay{Label: "morning", Start: cfg.MorningStart, End: cfg.MorningEnd},
		Afternoon: engine.HalfDay{Label: "afternoon", Start: cfg.AfternoonStart, End: cfg.AfternoonEnd},
		Radius:    cfg.PeakRadius,
	}
}

// NewPipelineFromConfig wires the upstream client, cache and analyzer into a pipeline.
func NewPipelineFromConfig(cfg *config.Config, cacheProvider cache.Provider, logger *slog.Logger) *engine.Pipeline {
	ttl := cfg.Cache.DefinitionsTTL
	if !cfg.Cache.Enabled {
		ttl = 0
	}
	client := repo.NewKPIClient(repo.KPIClientConfig{
		BaseURL:         cfg.Upstream.BaseURL,
		DefinitionsPath: cfg.Upstream.DefinitionsPath,
		ResultsPath:     cfg.Upstream.ResultsPath,
		HistoricalPath:  cfg.Upstream.HistoricalPath,
		Timeout:         cfg.Upstream.Timeout,
		DefinitionsTTL:  ttl,
		RateLimit:       cfg.Upstream.RateLimit,
		RateBurst:       cfg.Upstream.RateBurst,
	}, cacheProvider, logger)

	assembler := engine.NewAssembler(engine.NewPeakAnalyzer(PeakConfigFrom(cfg.Report)))
	return engine.NewPipeline(logger, client, assembler, cfg.Upstream.Concurrency)
}
