package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/h2non/filetype"
	"golang.org/x/time/rate"

	"github.com/vampirenirmal/bookforge/internal/core"
)

const (
	ideogramEndpoint     = "https://api.ideogram.ai/v1/ideogram-v3/generate"
	maxStyleReference    = 10 * 1024 * 1024
	downloadAttempts     = 3
	defaultDownloadPause = 2 * time.Second
)

// IdeogramGenerator calls the Ideogram v3 API, which accepts a style
// reference image alongside the prompt.
type IdeogramGenerator struct {
	apiKey        string
	endpoint      string
	aspectRatio   string
	httpClient    *http.Client
	limiter       *rate.Limiter
	downloadPause time.Duration
	logger        *slog.Logger
}

type IdeogramOption func(*IdeogramGenerator)

func WithIdeogramEndpoint(url string) IdeogramOption {
	return func(g *IdeogramGenerator) {
		if url != "" {
			g.endpoint = url
		}
	}
}

func WithIdeogramHTTPClient(hc *http.Client) IdeogramOption {
	return func(g *IdeogramGenerator) { g.httpClient = hc }
}

func WithIdeogramRateLimit(requestsPerMinute, burst int) IdeogramOption {
	return func(g *IdeogramGenerator) {
		g.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

func WithIdeogramDownloadPause(d time.Duration) IdeogramOption {
	return func(g *IdeogramGenerator) { g.downloadPause = d }
}

func WithIdeogramLogger(logger *slog.Logger) IdeogramOption {
	return func(g *IdeogramGenerator) { g.logger = logger }
}

func NewIdeogramGenerator(apiKey string, timeout time.Duration, opts ...IdeogramOption) *IdeogramGenerator {
	g := &IdeogramGenerator{
		apiKey:        apiKey,
		endpoint:      ideogramEndpoint,
		aspectRatio:   "1x1",
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(rate.Limit(1), 1),
		downloadPause: defaultDownloadPause,
		logger:        slog.Default().With("component", "ideogram"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type ideogramResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (g *IdeogramGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	body, contentType, err := g.form(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Api-Key", g.apiKey)
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", core.ErrNetworkError, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, raw)
	}

	var parsed ideogramResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return "", fmt.Errorf("%w: no image URL returned", core.ErrMalformedResponse)
	}

	data, err := g.download(ctx, parsed.Data[0].URL)
	if err != nil {
		return "", err
	}
	if err := writeFile(req.OutputPath, data); err != nil {
		return "", err
	}

	g.logger.Info("image generated",
		"id", req.ID,
		"style_reference", req.StyleReference != "",
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())
	return req.OutputPath, nil
}

func (g *IdeogramGenerator) form(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"prompt", req.Prompt},
		{"magic_prompt", "AUTO"},
		{"num_images", "1"},
		{"rendering_speed", "DEFAULT"},
		{"aspect_ratio", g.aspectRatio},
	}

	ref := g.styleReference(req)
	if ref == nil {
		// The API accepts either a style type or reference images, not both.
		fields = append(fields, [2]string{"style_type", "GENERAL"})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", f[0], err)
		}
	}

	if ref != nil {
		mimeType := "image/jpeg"
		if kind, err := filetype.Match(ref); err == nil && kind != filetype.Unknown {
			mimeType = kind.MIME.Value
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="style_reference_images"; filename=%q`, filepath.Base(req.StyleReference)))
		h.Set("Content-Type", mimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating reference part: %w", err)
		}
		if _, err := part.Write(ref); err != nil {
			return nil, "", fmt.Errorf("writing reference part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// styleReference returns the reference bytes, or nil when the reference is
// absent, unreadable or too large.
func (g *IdeogramGenerator) styleReference(req Request) []byte {
	if req.StyleReference == "" {
		return nil
	}
	data, err := os.ReadFile(req.StyleReference)
	if err != nil {
		g.logger.Warn("style reference unreadable", "id", req.ID, "path", req.StyleReference, "error", err)
		return nil
	}
	if len(data) > maxStyleReference {
		g.logger.Warn("style reference exceeds 10MB, skipping", "id", req.ID, "bytes", len(data))
		return nil
	}
	return data
}

func (g *IdeogramGenerator) download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		data, err := g.fetch(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt == downloadAttempts {
			break
		}
		select {
		case <-time.After(g.downloadPause):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("downloading image after %d attempts: %w", downloadAttempts, lastErr)
}

func (g *IdeogramGenerator) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, nil)
	}
	return io.ReadAll(resp.Body)
}

func statusError(status int, body []byte) error {
	msg := fmt.Sprintf("image API returned status %d: %s", status, bytes.TrimSpace(body))
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", core.ErrRateLimited, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", core.ErrNoAPIKey, msg)
	case status >= 500:
		return fmt.Errorf("%w: %s", core.ErrServerError, msg)
	}
	return fmt.Errorf("%w: %s", core.ErrInvalidInput, msg)
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", core.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", core.ErrNetworkError, err)
}
