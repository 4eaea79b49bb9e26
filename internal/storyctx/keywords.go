package storyctx

import (
	"strings"
	"unicode"
)

// Mood buckets in tie-break order.
var moodBuckets = []struct {
	name  string
	words []string
}{
	{"happy", []string{"happy", "joy", "joyful", "laugh", "laughed", "laughing", "smile", "smiled", "smiling", "delighted", "cheerful", "glad", "excited", "giggled"}},
	{"sad", []string{"sad", "cry", "cried", "crying", "tears", "lonely", "sorrow", "gloomy", "unhappy", "sobbed", "missed"}},
	{"curious", []string{"curious", "wonder", "wondered", "wondering", "explore", "explored", "exploring", "mystery", "mysterious", "question", "puzzled", "peeked"}},
	{"determined", []string{"determined", "brave", "bravely", "courage", "courageous", "tried", "persisted", "must", "resolved", "refused"}},
	{"peaceful", []string{"peaceful", "calm", "quiet", "quietly", "gentle", "gently", "rest", "rested", "sleep", "slept", "soft", "softly", "serene"}},
}

const moodNeutral = "neutral"

var plotTriggers = []string{"decided", "discovered", "realized", "learned", "promised", "found"}

var tensionTriggers = []string{"problem", "afraid", "worried", "danger", "lost", "trouble", "scared"}

var locationKeywords = []string{
	"forest", "castle", "village", "house", "home", "school", "garden", "cave",
	"river", "mountain", "beach", "ocean", "sea", "sky", "space", "city",
	"kitchen", "bedroom", "meadow", "lake", "island", "library", "park",
	"jungle", "desert", "attic", "woods",
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "about": true, "are": true, "was": true, "were": true,
	"but": true, "not": true, "you": true, "your": true, "our": true, "their": true,
	"its": true, "his": true, "her": true, "they": true, "them": true, "who": true,
	"what": true, "how": true, "can": true, "will": true, "all": true, "one": true,
	"has": true, "have": true, "had": true, "out": true, "over": true, "more": true,
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range words(s) {
		set[w] = true
	}
	return set
}

func classifyMood(text string) string {
	counts := make(map[string]int)
	for _, w := range words(text) {
		for _, b := range moodBuckets {
			for _, k := range b.words {
				if w == k {
					counts[b.name]++
				}
			}
		}
	}

	best, bestCount := moodNeutral, 0
	for _, b := range moodBuckets {
		if counts[b.name] > bestCount {
			best, bestCount = b.name, counts[b.name]
		}
	}
	return best
}

func findLocation(scene string) string {
	set := wordSet(scene)
	for _, loc := range locationKeywords {
		if set[loc] {
			return loc
		}
	}
	return ""
}

// themeWords returns the words of a theme that count towards confirming it.
func themeWords(theme string) []string {
	var out []string
	for _, w := range words(theme) {
		if len([]rune(w)) >= 3 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

func sentences(text string) []string {
	var out []string
	start := 0
	flush := func(end int) {
		if s := strings.Join(strings.Fields(text[start:end]), " "); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			flush(i + 1)
		}
	}
	flush(len(text))
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
