package phase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/vampirenirmal/bookforge/internal/core"
)

var (
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// CleanJSONResponse removes markdown code fences from model responses and
// fixes common JSON slips.
func CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") && strings.HasSuffix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	}

	return extractJSON(response)
}

// DecodeJSON cleans response and unmarshals it into v. Failures wrap
// core.ErrMalformedResponse.
func DecodeJSON(response string, v any) error {
	if err := json.Unmarshal([]byte(CleanJSONResponse(response)), v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return nil
}

// extractJSON finds the first balanced object in a response that carries
// other text around it.
func extractJSON(response string) string {
	if isValidJSON(response) {
		return response
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}

	depth, end := 0, 0
	inString, escaped := false, false
	for i := start; i < len(response) && end == 0; i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
	}
	if end == 0 {
		return response
	}

	candidate := fixJSONString(response[start:end])
	if isValidJSON(candidate) {
		return candidate
	}
	return response
}

func fixJSONString(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	return bareKey.ReplaceAllString(s, `$1"$2":`)
}

func isValidJSON(s string) bool {
	var js any
	return json.Unmarshal([]byte(s), &js) == nil
}
