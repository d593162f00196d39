package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var jsonSpanRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParseJSONResponse parses a JSON object out of an LLM reply. It tries a
// direct parse first, then strips markdown code fences, then falls back to the
// widest {...} span in the text. Returns nil when no object can be extracted;
// callers must treat nil as "no actionable result", not as an error.
func ParseJSONResponse(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return result
	}

	// Strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		stripped := strings.Join(lines[1:endIdx], "\n")
		if err := json.Unmarshal([]byte(stripped), &result); err == nil {
			return result
		}
	}

	// Last resort: widest {...} span anywhere in the reply
	if span := jsonSpanRe.FindString(text); span != "" {
		if err := json.Unmarshal([]byte(span), &result); err == nil {
			return result
		}
	}

	return nil
}

const truncationMarker = "... [tronqué]"

// Truncate bounds free text to maxLength characters for prompt construction.
// The cut is made on rune boundaries so accented text stays valid UTF-8.
// Empty input yields the placeholder the prompts expect.
func Truncate(text string, maxLength int) string {
	if text == "" {
		return "Non renseigné"
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	return string(runes[:maxLength]) + truncationMarker
}
