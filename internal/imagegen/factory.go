package imagegen

import (
	"fmt"
	"log/slog"

	"github.com/vampirenirmal/bookforge/internal/config"
	"github.com/vampirenirmal/bookforge/internal/core"
)

// NewFromConfig builds the image backend selected in configuration.
func NewFromConfig(cfg config.ImageConfig, limits config.Limits, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case "mock":
		return NewMockGenerator(), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai images: %w", core.ErrNoAPIKey)
		}
		return NewOpenAIGenerator(cfg.APIKey, cfg.Timeout, nil,
			WithOpenAIModel(cfg.Model),
			WithOpenAISize(cfg.Size),
			WithOpenAILogger(logger.With("component", "openai_images")),
		), nil
	case "ideogram":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("ideogram: %w", core.ErrNoAPIKey)
		}
		return NewIdeogramGenerator(cfg.APIKey, cfg.Timeout,
			WithIdeogramRateLimit(limits.RateLimit.RequestsPerMinute, limits.RateLimit.BurstSize),
			WithIdeogramLogger(logger.With("component", "ideogram")),
		), nil
	default:
		return nil, fmt.Errorf("%w: unknown image provider %q", core.ErrInvalidInput, cfg.Provider)
	}
}
