package agentwire

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// RepairJSON parses fragment as JSON, completing truncated input on a best
// effort basis: a trailing comma is stripped and unmatched braces/brackets are
// closed before reparsing. ok is false when the fragment still cannot be
// parsed, which means "keep accumulating", not an error.
func RepairJSON(fragment string) (any, bool) {
	repaired, ok := repairJSONString(fragment)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, false
	}
	return v, true
}

// repairJSONString returns a syntactically valid completion of fragment, or
// ok=false when no completion is found.
func repairJSONString(fragment string) (string, bool) {
	s := strings.TrimSpace(fragment)
	if s == "" {
		return "", false
	}
	if gjson.Valid(s) {
		return s, true
	}

	trimmed := strings.TrimRight(s, " \t\r\n")
	trimmed = strings.TrimSuffix(trimmed, ",")

	closers, ok := missingClosers(trimmed)
	if !ok {
		return "", false
	}
	candidate := trimmed + closers
	if gjson.Valid(candidate) {
		return candidate, true
	}
	return "", false
}

// missingClosers scans the fragment and returns the closing brackets and
// braces needed to balance it, innermost first. ok is false when the fragment
// ends inside a string literal or is already over-closed; completing either
// would require guessing at content.
func missingClosers(s string) (string, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return "", false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		return "", false
	}
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}
