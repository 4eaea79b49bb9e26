package story

import (
	"context"
	"fmt"
	"strings"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/phase"
)

// maxExampleChars bounds the example text sent for analysis.
const maxExampleChars = 6000

type StyleProfile struct {
	Tone           string `json:"tone"`
	SentenceLength string `json:"sentence_length"`
	Vocabulary     string `json:"vocabulary"`
	NarrativeVoice string `json:"narrative_voice"`
	Guide          string `json:"guide"`
}

// WritingGuide is the instruction that replaces a plan's writing style guide.
func (p StyleProfile) WritingGuide() string {
	if g := strings.TrimSpace(p.Guide); g != "" {
		return g
	}
	var parts []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Tone", p.Tone)
	add("Sentence length", p.SentenceLength)
	add("Vocabulary", p.Vocabulary)
	add("Narrative voice", p.NarrativeVoice)
	return strings.Join(parts, ". ")
}

// StyleImitator derives a writing style from an example passage.
type StyleImitator struct {
	phase.BaseStage
	agent *agent.Agent
}

func NewStyleImitator(client agent.AIClient, opts ...phase.BaseStageOption) *StyleImitator {
	base := phase.NewBaseStage("style", opts...)
	return &StyleImitator{
		BaseStage: base,
		agent:     agent.New(client, agent.PromptStyle).WithLogger(base.Logger()),
	}
}

func (s *StyleImitator) Analyze(ctx context.Context, example string) (StyleProfile, error) {
	example = strings.TrimSpace(example)
	if example == "" {
		return StyleProfile{}, fmt.Errorf("%w: empty style example", core.ErrInvalidInput)
	}
	if len(example) > maxExampleChars {
		example = example[:maxExampleChars]
	}

	var profile StyleProfile
	err := s.Retry(ctx, "analyze_style", func(ctx context.Context) error {
		response, err := s.agent.ExecuteJSON(ctx, map[string]any{"Example": example})
		if err != nil {
			return err
		}
		return phase.DecodeJSON(response, &profile)
	})
	if err != nil {
		return StyleProfile{}, err
	}
	if profile.WritingGuide() == "" {
		return StyleProfile{}, fmt.Errorf("%w: style analysis was empty", core.ErrMalformedResponse)
	}
	s.Logger().Info("style analysed", "tone", profile.Tone, "voice", profile.NarrativeVoice)
	return profile, nil
}
