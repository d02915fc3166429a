package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)
	trailingComma     = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON decodes content as a JSON object. When the whole body is not valid
// JSON it retries on the outermost {...} span, which covers fenced or
// prose-wrapped replies, and then once more with trailing commas removed.
// It returns nil when nothing decodes.
func ExtractJSON(content string) map[string]any {
	trimmed := strings.TrimSpace(content)
	if out := decodeObject(trimmed); out != nil {
		return out
	}
	match := jsonObjectPattern.FindString(trimmed)
	if match == "" {
		return nil
	}
	if out := decodeObject(match); out != nil {
		return out
	}
	return decodeObject(cleanJSON(match))
}

func cleanJSON(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

func decodeObject(s string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
