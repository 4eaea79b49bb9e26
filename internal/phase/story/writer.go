package story

import (
	"context"
	"log/slog"

	"github.com/vampirenirmal/bookforge/internal/agent"
)

// AgentWriter writes units with the embedded chapter prompt.
type AgentWriter struct {
	agent *agent.Agent
}

func NewAgentWriter(client agent.AIClient, logger *slog.Logger) *AgentWriter {
	a := agent.New(client, agent.PromptChapter)
	if logger != nil {
		a = a.WithLogger(logger)
	}
	return &AgentWriter{agent: a}
}

func (w *AgentWriter) WriteUnit(ctx context.Context, req UnitRequest) (string, error) {
	return w.agent.Execute(ctx, map[string]any{
		"Plan":         req.Plan,
		"Characters":   req.Plan.Characters,
		"UnitKind":     string(req.Kind),
		"Number":       req.Index + 1,
		"Total":        req.Total,
		"Outline":      req.Outline,
		"StoryContext": req.StoryContext,
		"PreviousText": req.PreviousText,
	})
}
