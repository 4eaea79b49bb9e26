package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Prompt names shipped with the binary.
const (
	PromptPlanner   = "planner"
	PromptChapter   = "chapter"
	PromptCharacter = "character"
	PromptTrends    = "trends"
	PromptStyle     = "style"
	PromptTranslate = "translate"
)

var (
	globalPromptCache *PromptCache
	cacheOnce         sync.Once
)

// GetPromptCache returns the shared cache over the embedded prompts.
func GetPromptCache() *PromptCache {
	cacheOnce.Do(func() {
		globalPromptCache = NewPromptCache(nil)
	})
	return globalPromptCache
}

// Agent binds a client to one named prompt template.
type Agent struct {
	client      AIClient
	promptName  string
	promptCache *PromptCache
	logger      *slog.Logger
}

func New(client AIClient, promptName string) *Agent {
	return &Agent{
		client:      client,
		promptName:  promptName,
		promptCache: GetPromptCache(),
		logger:      slog.Default().With("component", "agent", "prompt", promptName),
	}
}

func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	a.logger = logger.With("component", "agent", "prompt", a.promptName)
	return a
}

// WithPromptCache swaps the template source, mostly for tests.
func (a *Agent) WithPromptCache(pc *PromptCache) *Agent {
	a.promptCache = pc
	return a
}

func (a *Agent) Client() AIClient { return a.client }

// Execute renders the template with data and returns the raw completion.
func (a *Agent) Execute(ctx context.Context, data any) (string, error) {
	return a.execute(ctx, data, false)
}

// ExecuteJSON asks for a JSON-only answer.
func (a *Agent) ExecuteJSON(ctx context.Context, data any) (string, error) {
	return a.execute(ctx, data, true)
}

// ExecuteStructured enforces schema when the client supports it and falls back
// to a JSON-only request otherwise.
func (a *Agent) ExecuteStructured(ctx context.Context, data any, schema Schema) (string, error) {
	sc, ok := a.client.(StructuredClient)
	if !ok {
		return a.execute(ctx, data, true)
	}

	system, user, err := a.promptCache.Render(a.promptName, data)
	if err != nil {
		return "", err
	}

	start := time.Now()
	response, err := sc.CompleteStructured(ctx, system, user, schema)
	if err != nil {
		a.logger.Error("structured AI request failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return "", err
	}
	a.logger.Info("structured AI request completed",
		"schema", schema.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_length", len(response))
	return response, nil
}

func (a *Agent) execute(ctx context.Context, data any, forceJSON bool) (string, error) {
	startTime := time.Now()

	system, user, err := a.promptCache.Render(a.promptName, data)
	if err != nil {
		return "", fmt.Errorf("preparing prompt: %w", err)
	}

	a.logger.Debug("executing AI request",
		"system_length", len(system),
		"prompt_length", len(user),
		"force_json", forceJSON)

	var response string
	switch {
	case system != "" && forceJSON:
		response, err = a.client.CompleteJSONWithSystem(ctx, system, user)
	case system != "":
		response, err = a.client.CompleteWithSystem(ctx, system, user)
	case forceJSON:
		response, err = a.client.CompleteJSON(ctx, user)
	default:
		response, err = a.client.Complete(ctx, user)
	}

	duration := time.Since(startTime)
	if err != nil {
		a.logger.Error("AI request failed",
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return "", err
	}

	a.logger.Info("AI request completed",
		"duration_ms", duration.Milliseconds(),
		"response_length", len(response))

	return response, nil
}
