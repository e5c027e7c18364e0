// Package ai holds the provider-agnostic pieces of question generation:
// response cleaning, payload decoding, prompts, provider errors and breakers.
package ai

import (
	"encoding/json"
	"strings"
)

// ResponseCleaner extracts a JSON payload from free-form LLM output.
type ResponseCleaner struct {
	// MaxCandidates bounds how many balanced fragments are tried.
	MaxCandidates int
}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{MaxCandidates: 32}
}

var smartQuotes = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
)

// ExtractJSON returns the first JSON object or array found in response. It
// handles fenced code blocks, commentary around the payload, comments,
// trailing commas, smart quotes and raw newlines inside strings.
func (rc *ResponseCleaner) ExtractJSON(response string) (string, error) {
	text := strings.TrimSpace(strings.TrimPrefix(response, "\uFEFF"))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return "", &JSONValidationError{Original: response, Message: "empty response"}
	}

	candidates := make([]string, 0, 4)
	if startsJSON(text) {
		candidates = append(candidates, text)
	}
	if fenced, ok := fencedBlock(text); ok {
		candidates = append(candidates, fenced)
	}
	candidates = append(candidates, rc.balancedFragments(text)...)

	for _, c := range candidates {
		if out, ok := tryJSON(c); ok {
			return out, nil
		}
	}
	// Typographic quotes are only rewritten when nothing else parsed.
	normalized := smartQuotes.Replace(text)
	if normalized != text {
		for _, c := range rc.balancedFragments(normalized) {
			if out, ok := tryJSON(c); ok {
				return out, nil
			}
		}
	}
	return "", &JSONValidationError{Original: response, Message: "no valid JSON payload found"}
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	return json.Valid([]byte(response))
}

func startsJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func tryJSON(candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}
	if json.Valid([]byte(candidate)) {
		return candidate, true
	}
	fixed := sanitize(candidate)
	if json.Valid([]byte(fixed)) {
		return fixed, true
	}
	return "", false
}

// fencedBlock returns the body of the first ``` fenced block.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	body := s[start+3:]
	// skip the info string (json, JSON, javascript...)
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !startsJSON(strings.TrimSpace(body[:nl])) {
		body = body[nl+1:]
	}
	end := strings.Index(body, "```")
	if end < 0 {
		return strings.TrimSpace(body), true
	}
	return strings.TrimSpace(body[:end]), true
}

// balancedFragments returns substrings starting at each '{' or '[' and ending
// at the matching bracket, skipping brackets inside string literals. Failed
// scans count against the same limit, keeping unbalanced input linear.
func (rc *ResponseCleaner) balancedFragments(s string) []string {
	limit := rc.MaxCandidates
	if limit <= 0 {
		limit = 32
	}
	var out []string
	misses := 0
	for i := 0; i < len(s) && len(out) < limit && misses < limit; i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if end := matchBracket(s, i); end > i {
			out = append(out, s[i:end+1])
		} else {
			misses++
		}
	}
	return out
}

func matchBracket(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// sanitize removes comments and trailing commas outside strings and escapes
// raw control characters inside strings.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(ch)
			case ch == '\\':
				escaped = true
				b.WriteByte(ch)
			case ch == '"':
				inString = false
				b.WriteByte(ch)
			case ch == '\n':
				b.WriteString(`\n`)
			case ch == '\r':
			case ch == '\t':
				b.WriteString(`\t`)
			default:
				b.WriteByte(ch)
			}
			continue
		}
		switch {
		case ch == '"':
			inString = true
			b.WriteByte(ch)
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}
		case ch == ',':
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\t' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// JSONValidationError represents a JSON extraction failure.
type JSONValidationError struct {
	Original string
	Message  string
}

func (e *JSONValidationError) Error() string {
	return e.Message
}
