// Package jsonrepair extracts a JSON object from free-form model output and
// repairs responses that were truncated mid-structure.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the input contains no JSON object at all.
var ErrNoJSON = errors.New("no JSON object found in response")

// Extract locates the outermost JSON object in text (first '{' to last '}')
// and returns it as a string. If the slice does not parse, a truncation
// repair is attempted. The raw input is never modified; callers keep it for
// diagnostics when Extract fails.
func Extract(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSON
	}

	candidate := text[start : end+1]
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	repaired, err := Repair(candidate)
	if err != nil {
		return "", fmt.Errorf("response is not valid JSON and could not be repaired: %w", err)
	}
	return repaired, nil
}

// Unmarshal extracts the JSON object from text and decodes it into v.
func Unmarshal(text string, v any) error {
	s, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode extracted JSON: %w", err)
	}
	return nil
}

// Repair recovers a JSON document cut off mid-structure: the input is
// trimmed back to the last completely closed value and every structure
// still open at that point is re-closed. The trailing incomplete element
// is dropped.
func Repair(s string) (string, error) {
	lastComplete := lastCompleteValueEnd(s)
	if lastComplete < 0 {
		return "", errors.New("no complete element to trim back to")
	}

	trimmed := s[:lastComplete+1]
	stack := openStructures(trimmed)

	var b strings.Builder
	b.WriteString(trimmed)
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			b.WriteByte('}')
		case '[':
			b.WriteByte(']')
		}
	}

	repaired := b.String()
	if !json.Valid([]byte(repaired)) {
		return "", errors.New("repaired document still does not parse")
	}
	return repaired, nil
}

// lastCompleteValueEnd returns the index of the last '}' or ']' that closes
// a nested value (depth stays >= 1 after the close), i.e. the end of the
// last complete element inside the outer object. String literals are
// skipped so braces inside text do not confuse the scan.
func lastCompleteValueEnd(s string) int {
	depth := 0
	inString := false
	escaped := false
	last := -1

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
			depth++
		case '}', ']':
			depth--
			if depth >= 1 {
				last = i
			}
		}
	}
	return last
}

// openStructures returns the stack of unclosed '{' and '[' in s, outermost
// first.
func openStructures(s string) []byte {
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
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack
}
