package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// MockCall records one request seen by MockClient.
type MockCall struct {
	System string
	Prompt string
	JSON   bool
}

// MockHandler produces a response for a matched prompt.
type MockHandler func(system, prompt string) (string, error)

type mockRule struct {
	match   string
	handler MockHandler
}

// MockClient provides fake AI responses for offline runs and tests. Rules are
// matched by substring against system and user prompt, newest rule first.
type MockClient struct {
	mu    sync.Mutex
	rules []mockRule
	calls []MockCall
}

// NewMockClient returns a client that can drive a whole book without network
// access.
func NewMockClient() *MockClient {
	m := &MockClient{}
	m.OnFunc("Book idea:", func(_, prompt string) (string, error) { return mockPlan(prompt), nil })
	m.OnFunc("Now write", func(_, prompt string) (string, error) { return mockUnit(prompt), nil })
	m.On("Recent headlines:", `{"topics":["friendship","nature"],"keywords":["forest","kindness"],"summary":"Gentle stories about friendship in nature are popular."}`)
	m.On("Analyse the style", `{"tone":"warm","sentence_length":"short","vocabulary":"simple","narrative_voice":"third person","guide":"Warm third-person narration in short, simple sentences."}`)
	m.OnFunc("Translate into", func(_, prompt string) (string, error) {
		if i := strings.Index(prompt, "\n\n"); i >= 0 {
			return prompt[i+2:], nil
		}
		return prompt, nil
	})
	m.On("shown in this image", "A small round creature with soft blue fur, large amber eyes and a striped red scarf.")
	return m
}

// On registers a fixed response for prompts containing match.
func (m *MockClient) On(match, response string) *MockClient {
	return m.OnFunc(match, func(string, string) (string, error) { return response, nil })
}

// OnError makes prompts containing match fail with err.
func (m *MockClient) OnError(match string, err error) *MockClient {
	return m.OnFunc(match, func(string, string) (string, error) { return "", err })
}

func (m *MockClient) OnFunc(match string, h MockHandler) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]mockRule{{match: match, handler: h}}, m.rules...)
	return m
}

// Calls returns a copy of every recorded request.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *MockClient) respond(ctx context.Context, system, prompt string, asJSON bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{System: system, Prompt: prompt, JSON: asJSON})
	rules := m.rules
	m.mu.Unlock()

	for _, r := range rules {
		if strings.Contains(prompt, r.match) || strings.Contains(system, r.match) {
			return r.handler(system, prompt)
		}
	}
	if asJSON {
		return `{"message": "Mock response"}`, nil
	}
	return "Mock response", nil
}

func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.respond(ctx, "", prompt, false)
}

func (m *MockClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return m.CompleteJSONWithSystem(ctx, "", prompt)
}

func (m *MockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.respond(ctx, systemPrompt, userPrompt, false)
}

func (m *MockClient) CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	response, err := m.respond(ctx, systemPrompt, userPrompt, true)
	if err != nil {
		return "", err
	}
	var parsed any
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return "", fmt.Errorf("mock response is not valid JSON: %w", err)
	}
	return response, nil
}

func (m *MockClient) DescribeImage(ctx context.Context, prompt string, _ []byte, _ string) (string, error) {
	return m.respond(ctx, "", prompt, false)
}

var (
	markerCountPattern = regexp.MustCompile(`Include exactly (\d+) \[IMAGE`)
	unitTitlePattern   = regexp.MustCompile(`Now write \w+ \d+ of \d+: "([^"]*)"`)
	ideaPattern        = regexp.MustCompile(`Book idea: (.*)`)
)

func mockUnit(prompt string) string {
	title := "the story"
	if m := unitTitlePattern.FindStringSubmatch(prompt); m != nil {
		title = m[1]
	}
	n := 1
	if m := markerCountPattern.FindStringSubmatch(prompt); m != nil {
		n, _ = strconv.Atoi(m[1])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The day of %s began quietly, and everyone was curious about what would happen.\n\n", title)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[IMAGE: A scene from %s, moment %d]\n\n", title, i+1)
		b.WriteString("They walked on together and discovered something new along the way.\n\n")
	}
	b.WriteString("By the end, they smiled and felt happy.")
	return b.String()
}

func mockPlan(prompt string) string {
	idea := "a small adventure"
	if m := ideaPattern.FindStringSubmatch(prompt); m != nil {
		idea = strings.TrimSpace(m[1])
	}
	plan := map[string]any{
		"title":               "A Tale of " + idea,
		"genre":               "Children's Adventure",
		"target_audience":     "Ages 5-8",
		"writing_style_guide": "Short, warm sentences.",
		"image_style_guide":   "Bright watercolor illustrations.",
		"cover_concept":       "The heroes setting out on " + idea,
		"chapters": []map[string]any{
			{"title": "Setting Out", "summary": "The journey begins.", "image_placeholders_needed": 1},
			{"title": "Coming Home", "summary": "The friends return, wiser.", "image_placeholders_needed": 1},
		},
		"theme":                "friendship",
		"key_elements":         []string{"journey", "friendship"},
		"estimated_word_count": 800,
	}
	data, _ := json.Marshal(plan)
	return string(data)
}
