package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vampirenirmal/bookforge/internal/storage"
)

// ResponseCache stores completions on disk keyed by a hash of the request.
type ResponseCache struct {
	storage storage.Storage
	ttl     time.Duration
	logger  *slog.Logger
}

type CachedResponse struct {
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

func NewResponseCache(storage storage.Storage, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		storage: storage,
		ttl:     ttl,
		logger:  slog.Default().With("component", "response_cache"),
	}
}

func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	path := c.path(key)

	data, err := c.storage.Load(ctx, path)
	if err != nil {
		return "", false
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn("cache entry unreadable", "path", path, "error", err)
		return "", false
	}

	if age := time.Since(cached.Timestamp); age > c.ttl {
		c.logger.Debug("cache entry expired", "path", path, "age", age)
		return "", false
	}

	return cached.Response, true
}

func (c *ResponseCache) Set(ctx context.Context, key, response string) error {
	data, err := json.Marshal(CachedResponse{Response: response, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshaling cached response: %w", err)
	}
	return c.storage.Save(ctx, c.path(key), data)
}

func (c *ResponseCache) path(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("responses/%s.json", hex.EncodeToString(hash[:]))
}

// CachedClient serves repeated identical requests from a ResponseCache.
type CachedClient struct {
	AIClient
	cache  *ResponseCache
	logger *slog.Logger
}

func WithCache(client AIClient, cache *ResponseCache) *CachedClient {
	return &CachedClient{
		AIClient: client,
		cache:    cache,
		logger:   slog.Default().With("component", "cached_client"),
	}
}

func (c *CachedClient) cached(ctx context.Context, key string, call func() (string, error)) (string, error) {
	if response, found := c.cache.Get(ctx, key); found {
		c.logger.Debug("serving from cache", "response_length", len(response))
		return response, nil
	}

	response, err := call()
	if err != nil {
		return "", err
	}

	if cacheErr := c.cache.Set(ctx, key, response); cacheErr != nil {
		c.logger.Warn("failed to cache response", "error", cacheErr)
	}
	return response, nil
}

func (c *CachedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.cached(ctx, "TEXT:"+prompt, func() (string, error) {
		return c.AIClient.Complete(ctx, prompt)
	})
}

func (c *CachedClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.cached(ctx, "JSON:"+prompt, func() (string, error) {
		return c.AIClient.CompleteJSON(ctx, prompt)
	})
}

func (c *CachedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.cached(ctx, "SYSTEM:"+systemPrompt+"|USER:"+userPrompt, func() (string, error) {
		return c.AIClient.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	})
}

func (c *CachedClient) CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.cached(ctx, "JSON_SYSTEM:"+systemPrompt+"|USER:"+userPrompt, func() (string, error) {
		return c.AIClient.CompleteJSONWithSystem(ctx, systemPrompt, userPrompt)
	})
}

// CompleteStructured degrades to a JSON-only request when the wrapped client
// cannot enforce a schema.
func (c *CachedClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, schema Schema) (string, error) {
	return c.cached(ctx, "SCHEMA:"+schema.Name+"|SYSTEM:"+systemPrompt+"|USER:"+userPrompt, func() (string, error) {
		if sc, ok := c.AIClient.(StructuredClient); ok {
			return sc.CompleteStructured(ctx, systemPrompt, userPrompt, schema)
		}
		return c.AIClient.CompleteJSONWithSystem(ctx, systemPrompt, userPrompt)
	})
}

// DescribeImage is never cached.
func (c *CachedClient) DescribeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if ia, ok := c.AIClient.(ImageAnalyzer); ok {
		return ia.DescribeImage(ctx, prompt, image, mimeType)
	}
	return "", errors.New("image analysis not supported by the configured text provider")
}
