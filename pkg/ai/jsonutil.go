package ai

import (
	"regexp"
	"strings"
)

var (
	// ```json { ... } ```
	jsonFencePattern  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON returns the JSON object embedded in a model reply, looking
// inside a markdown code fence first. It returns "" when no object is found.
func ExtractJSON(text string) string {
	if m := jsonFencePattern.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(jsonObjectPattern.FindString(text))
}

// extractOrRaw returns the embedded JSON object, or text unchanged when
// there is none so the caller's decoder reports the real problem.
func extractOrRaw(text string) string {
	if raw := ExtractJSON(text); raw != "" {
		return raw
	}
	return text
}
