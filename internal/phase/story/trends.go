package story

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/mmcdole/gofeed"

	"github.com/vampirenirmal/bookforge/internal/agent"
	"github.com/vampirenirmal/bookforge/internal/phase"
)

const defaultTrendItems = 50

// TrendReport summarises what is currently popular around a topic.
type TrendReport struct {
	Topics   []string `json:"topics"`
	Keywords []string `json:"keywords"`
	Summary  string   `json:"summary"`
	// Fallback is set when the report was derived locally from keyword counts.
	Fallback bool `json:"fallback,omitempty"`
}

// String renders the report for the planning prompt.
func (r TrendReport) String() string {
	var b strings.Builder
	if r.Summary != "" {
		b.WriteString(r.Summary)
	}
	if len(r.Topics) > 0 {
		fmt.Fprintf(&b, "\nTopics: %s", strings.Join(r.Topics, ", "))
	}
	if len(r.Keywords) > 0 {
		fmt.Fprintf(&b, "\nKeywords: %s", strings.Join(r.Keywords, ", "))
	}
	return strings.TrimSpace(b.String())
}

// TrendFinder reads configured RSS and Atom feeds and asks the model what
// they say about a topic.
type TrendFinder struct {
	phase.BaseStage
	agent    *agent.Agent
	parser   *gofeed.Parser
	feeds    []string
	maxItems int
}

type TrendOption func(*trendConfig)

type trendConfig struct {
	httpClient *http.Client
	maxItems   int
	logger     *slog.Logger
}

func WithTrendHTTPClient(hc *http.Client) TrendOption {
	return func(c *trendConfig) { c.httpClient = hc }
}

func WithTrendMaxItems(n int) TrendOption {
	return func(c *trendConfig) {
		if n > 0 {
			c.maxItems = n
		}
	}
}

func WithTrendLogger(logger *slog.Logger) TrendOption {
	return func(c *trendConfig) { c.logger = logger }
}

func NewTrendFinder(client agent.AIClient, feeds []string, opts ...TrendOption) *TrendFinder {
	cfg := trendConfig{maxItems: defaultTrendItems}
	for _, opt := range opts {
		opt(&cfg)
	}

	stageOpts := []phase.BaseStageOption{phase.WithRetryConfig(phase.NoRetry)}
	if cfg.logger != nil {
		stageOpts = append(stageOpts, phase.WithLogger(cfg.logger))
	}
	base := phase.NewBaseStage("trends", stageOpts...)

	parser := gofeed.NewParser()
	if cfg.httpClient != nil {
		parser.Client = cfg.httpClient
	}
	return &TrendFinder{
		BaseStage: base,
		agent:     agent.New(client, agent.PromptTrends).WithLogger(base.Logger()),
		parser:    parser,
		feeds:     feeds,
		maxItems:  cfg.maxItems,
	}
}

// Find never fails on feed or model errors; it degrades to a keyword count
// and, with nothing to count, to an empty report.
func (t *TrendFinder) Find(ctx context.Context, topic, genre string) (TrendReport, error) {
	headlines := t.headlines(ctx, topic, genre)
	if err := ctx.Err(); err != nil {
		return TrendReport{}, err
	}
	if len(headlines) == 0 {
		t.Logger().Info("no headlines found", "topic", topic, "feeds", len(t.feeds))
		return TrendReport{Fallback: true}, nil
	}

	response, err := t.agent.ExecuteJSON(ctx, map[string]any{"Topic": topic, "Genre": genre, "Items": headlines})
	if err == nil {
		var report TrendReport
		if err = phase.DecodeJSON(response, &report); err == nil && report.Summary != "" {
			t.Logger().Info("trends found", "topic", topic, "headlines", len(headlines), "keywords", len(report.Keywords))
			return report, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return TrendReport{}, ctxErr
	}

	t.Logger().Warn("trend analysis failed, counting keywords", "topic", topic, "error", err)
	return KeywordReport(headlines, 5), nil
}

// headlines collects item titles, preferring ones that mention the topic or
// genre. When nothing matches, the newest items are used.
func (t *TrendFinder) headlines(ctx context.Context, topic, genre string) []string {
	terms := keywords(topic + " " + genre)

	var matched, all []string
	for _, url := range t.feeds {
		feed, err := t.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			t.Logger().Warn("feed unavailable", "url", url, "error", err)
			continue
		}
		for _, item := range feed.Items {
			title := strings.TrimSpace(item.Title)
			if title == "" {
				continue
			}
			all = append(all, title)
			if mentionsAny(title+" "+item.Description, terms) {
				matched = append(matched, title)
			}
		}
	}

	items := matched
	if len(items) == 0 {
		items = all
	}
	if len(items) > t.maxItems {
		items = items[:t.maxItems]
	}
	return items
}

// KeywordReport builds a report from the most frequent words in headlines.
func KeywordReport(headlines []string, n int) TrendReport {
	counts := map[string]int{}
	for _, h := range headlines {
		for _, w := range keywords(h) {
			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}

	report := TrendReport{Keywords: words, Fallback: true}
	if len(words) > 0 {
		report.Summary = "Frequent headline keywords: " + strings.Join(words, ", ") + "."
	}
	return report
}

var stopWords = map[string]bool{
	"about": true, "after": true, "their": true, "there": true, "these": true,
	"this": true, "that": true, "with": true, "from": true, "what": true,
	"when": true, "will": true, "your": true, "have": true, "into": true,
	"more": true, "than": true, "they": true, "book": true, "books": true,
}

func keywords(s string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		w = strings.Trim(w, "'")
		if len(w) >= 4 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func mentionsAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
