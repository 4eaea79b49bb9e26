package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vampirenirmal/bookforge/internal/core"
)

// OpenAIGenerator renders illustrations through the OpenAI images endpoint.
// The endpoint has no style-reference input, so consistency relies on the
// shared style guide in every prompt.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	size   string
	logger *slog.Logger
}

type OpenAIOption func(*OpenAIGenerator)

func WithOpenAIModel(model string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

func WithOpenAISize(size string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if size != "" {
			g.size = size
		}
	}
}

func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(g *OpenAIGenerator) { g.logger = logger }
}

func NewOpenAIGenerator(apiKey string, timeout time.Duration, reqOpts []option.RequestOption, opts ...OpenAIOption) *OpenAIGenerator {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		// The pipeline owns retries.
		option.WithMaxRetries(0),
	}, reqOpts...)

	g := &OpenAIGenerator{
		client: openai.NewClient(all...),
		model:  string(openai.ImageModelDallE3),
		size:   string(openai.ImageGenerateParamsSize1024x1024),
		logger: slog.Default().With("component", "openai_images"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if req.StyleReference != "" {
		g.logger.Debug("style reference not supported, relying on prompt", "id", req.ID)
	}

	start := time.Now()
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(g.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(g.size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", fmt.Errorf("%w: no image data in response", core.ErrMalformedResponse)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return "", fmt.Errorf("%w: decoding image: %v", core.ErrMalformedResponse, err)
	}
	if err := writeFile(req.OutputPath, data); err != nil {
		return "", err
	}

	g.logger.Info("image generated", "id", req.ID, "bytes", len(data), "duration_ms", time.Since(start).Milliseconds())
	return req.OutputPath, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", core.ErrRateLimited, err)
		case apiErr.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", core.ErrNoAPIKey, err)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", core.ErrServerError, err)
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrNetworkError, err)
}
