package llm

import (
	"fmt"
	"strings"
)

// CleanJSONBlock removes markdown code fences from a model response if
// present.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start == -1 {
			continue
		}
		text = text[start+len(fence):]
		if end := strings.LastIndex(text, "```"); end != -1 {
			text = text[:end]
		}
		return strings.TrimSpace(text)
	}

	return text
}

// ExtractJSON returns the first balanced JSON object embedded in text.
// Models routinely wrap their answer in fences or prose; this strips the
// fences and then scans for the outermost {...} span, skipping braces
// inside string literals.
func ExtractJSON(text string) (string, error) {
	text = CleanJSONBlock(text)

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON object in response")
}
