package agent

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/vampirenirmal/bookforge/internal/config"
	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/storage"
)

// NewFromConfig builds the text-generation client selected in configuration.
// When a cache TTL is set, responses are cached under cacheDir.
func NewFromConfig(cfg config.TextConfig, limits config.Limits, cacheDir string, logger *slog.Logger) (AIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := newClient(cfg, limits, logger)
	if err != nil {
		return nil, err
	}
	if cfg.CacheTTL > 0 && cacheDir != "" && cfg.Provider != "mock" {
		fs := storage.NewFileSystem(filepath.Join(cacheDir, "cache"))
		return WithCache(client, NewResponseCache(fs, cfg.CacheTTL)), nil
	}
	return client, nil
}

func newClient(cfg config.TextConfig, limits config.Limits, logger *slog.Logger) (AIClient, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockClient(), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: %w", core.ErrNoAPIKey)
		}
		return NewOpenAIClient(cfg.APIKey,
			WithOpenAIBaseURL(cfg.BaseURL),
			WithOpenAIModel(cfg.Model),
			WithOpenAITimeout(cfg.Timeout),
			WithOpenAIRateLimit(limits.RateLimit.RequestsPerMinute, limits.RateLimit.BurstSize),
			WithOpenAILogger(logger.With("component", "openai_client")),
		), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: %w", core.ErrNoAPIKey)
		}
		return NewClient(cfg.APIKey,
			WithAPIConfig(cfg.BaseURL, cfg.Model),
			WithTimeout(cfg.Timeout),
			WithRateLimit(limits.RateLimit.RequestsPerMinute, limits.RateLimit.BurstSize),
			WithLogger(logger.With("component", "ai_client")),
		), nil
	default:
		return nil, fmt.Errorf("%w: unknown text provider %q", core.ErrInvalidInput, cfg.Provider)
	}
}
