// Package extract pulls a structured JSON block out of free-text model output.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	// ErrNoBlock means the text holds nothing that looks like a structured block.
	ErrNoBlock = errors.New("no structured block found")
	// ErrMalformed means a block was found but it is not valid JSON.
	ErrMalformed = errors.New("structured block is not valid JSON")
)

// Extractor finds the structured block in text.
type Extractor interface {
	Extract(text string) (json.RawMessage, error)
}

// Default tries fenced blocks first and falls back to bare JSON.
func Default() Extractor {
	return Chain{Fenced{}, Bare{}}
}

var fencePattern = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_-]*)[ \\t]*\\r?\\n(.*?)```")

// Fenced returns the first markdown code fence whose body is valid JSON.
// Fences labelled with something other than json are skipped.
type Fenced struct{}

func (Fenced) Extract(text string) (json.RawMessage, error) {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, ErrNoBlock
	}
	seen := false
	for _, m := range matches {
		label := strings.ToLower(m[1])
		if label != "" && label != "json" {
			continue
		}
		seen = true
		body := strings.TrimSpace(m[2])
		if gjson.Valid(body) {
			return json.RawMessage(body), nil
		}
	}
	if !seen {
		return nil, ErrNoBlock
	}
	return nil, ErrMalformed
}

// Bare returns the first balanced {...} or [...] span that is valid JSON.
type Bare struct{}

func (Bare) Extract(text string) (json.RawMessage, error) {
	seen := false
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchClose(text, i)
		if end < 0 {
			continue
		}
		seen = true
		candidate := text[i : end+1]
		if gjson.Valid(candidate) {
			return json.RawMessage(candidate), nil
		}
		// never descend into a span already rejected
		i = end
	}
	if !seen {
		return nil, ErrNoBlock
	}
	return nil, ErrMalformed
}

// matchClose returns the index of the bracket closing the one at start,
// skipping over string literals, or -1.
func matchClose(text string, start int) int {
	var stack []byte
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
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

// Chain tries each extractor in order. Only ErrNoBlock moves on to the next
// one; a malformed block stops the chain.
type Chain []Extractor

func (c Chain) Extract(text string) (json.RawMessage, error) {
	for _, e := range c {
		raw, err := e.Extract(text)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, ErrNoBlock) {
			return nil, err
		}
	}
	return nil, ErrNoBlock
}
