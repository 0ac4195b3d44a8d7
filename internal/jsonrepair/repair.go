// Package jsonrepair recovers a JSON object from imperfect model output.
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// A strategy transforms raw model output into a candidate JSON string.
// Returning "" means the strategy has nothing to offer for this input.
type strategy struct {
	name string
	fn   func(raw string) string
}

// strategies are tried in order; the first candidate that unmarshals as a
// JSON object wins.
var strategies = []strategy{
	{"direct", direct},
	{"fenced_block", fencedBlock},
	{"brace_balance", braceBalance},
	{"syntax_repair", syntaxRepair},
	{"largest_object", largestObject},
}

// Recover extracts a JSON object from raw model output. It walks the
// strategy chain and returns the first candidate that unmarshals, or an
// error once the chain is exhausted.
func Recover(raw string) (string, error) {
	for _, s := range strategies {
		candidate := s.fn(raw)
		if candidate == "" {
			continue
		}
		if isObject(candidate) {
			return candidate, nil
		}
	}
	return "", eris.New("jsonrepair: no strategy produced valid JSON")
}

// Decode recovers a JSON object from raw output and unmarshals it into a
// generic map.
func Decode(raw string) (map[string]any, error) {
	clean, err := Recover(raw)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, eris.Wrap(err, "jsonrepair: decode")
	}
	return out, nil
}

func isObject(s string) bool {
	var v map[string]any
	return json.Unmarshal([]byte(s), &v) == nil
}

// direct tries the trimmed response as-is.
func direct(raw string) string {
	return strings.TrimSpace(raw)
}

// fencedBlock extracts the body of a ```json or bare ``` fenced block.
func fencedBlock(raw string) string {
	text := strings.TrimSpace(raw)

	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	text = text[start+3:]
	text = strings.TrimPrefix(text, "json")

	if end := strings.Index(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// braceBalance slices from the first '{' to the point where the opening
// brace balances. Truncated input never balances and is repaired instead by
// closing any open string and unclosed brackets or braces.
func braceBalance(raw string) string {
	text := strings.TrimSpace(raw)

	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	text = text[start:]

	depth := 0
	inString := false
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}

	return closeTruncated(text)
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*):`)
)

// syntaxRepair removes trailing commas and quotes unquoted object keys,
// applied on top of the brace-balanced slice.
func syntaxRepair(raw string) string {
	text := braceBalance(raw)
	if text == "" {
		return ""
	}
	text = trailingCommaRe.ReplaceAllString(text, "$1")
	text = unquotedKeyRe.ReplaceAllString(text, `$1"$2"$3:`)
	return text
}

// largestObject scans for balanced top-level {...} spans and returns the
// largest one that unmarshals. Last resort.
func largestObject(raw string) string {
	spans := balancedSpans(raw)
	best := ""
	for _, span := range spans {
		if len(span) > len(best) && isObject(span) {
			best = span
		}
	}
	return best
}

// balancedSpans returns every balanced top-level {...} substring of text.
func balancedSpans(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}

// closeTruncated closes any unclosed string, brackets, or braces in
// truncated JSON.
func closeTruncated(text string) string {
	if len(text) == 0 {
		return text
	}

	// Track open delimiters in order.
	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}

		if c == '\\' && inString {
			escape = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		text += `"`
	}

	// Close unclosed delimiters in reverse order.
	for i := len(stack) - 1; i >= 0; i-- {
		// Trim trailing comma before closing (common in truncated arrays).
		text = strings.TrimRight(text, " \t\n\r,")
		text += string(stack[i])
	}

	return text
}
