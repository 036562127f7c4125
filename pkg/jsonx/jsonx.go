// Package jsonx decodes JSON emitted by language models.
//
// Model output is frequently wrapped in markdown fences, uses single quotes
// or Python literals (True/False/None, tuples, trailing commas). Decode tries
// a fixed pipeline of strategies and stops at the first that succeeds:
//
//  1. strict JSON
//  2. strip code fences / surrounding prose, then strict JSON
//  3. Python literal evaluation (dict/list/tuple/str/number/bool/None)
//  4. single to double quote substitution, then strict JSON
//
// Payloads above the configured size are rejected before any strategy runs.
package jsonx

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// DefaultMaxBytes is the default payload limit.
const DefaultMaxBytes = 1 << 20

var fenceRE = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_-]+)?\\s*(.*?)```")

// Parser is a tolerant JSON decoder.
type Parser struct {
	maxBytes int
}

// New returns a parser rejecting payloads above maxBytes (<=0 uses DefaultMaxBytes).
func New(maxBytes int) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Parser{maxBytes: maxBytes}
}

var defaultParser = New(DefaultMaxBytes)

// Unmarshal decodes s into v with the default parser.
func Unmarshal(s string, v any) error {
	return defaultParser.Unmarshal(s, v)
}

// Unmarshal decodes s into v.
func (p *Parser) Unmarshal(s string, v any) error {
	if len(s) > p.maxBytes {
		return errors.ErrPayloadTooLarge.WithMessagef("payload of %d bytes exceeds limit %d", len(s), p.maxBytes)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return errors.ErrParseFailure.WithMessage("empty model output")
	}

	if json.Unmarshal([]byte(s), v) == nil {
		return nil
	}

	stripped := StripFences(s)
	if stripped != s && json.Unmarshal([]byte(stripped), v) == nil {
		return nil
	}

	if lit, err := EvalLiteral(stripped); err == nil {
		b, err := json.Marshal(lit)
		if err == nil && json.Unmarshal(b, v) == nil {
			return nil
		}
	}

	quoted := strings.ReplaceAll(stripped, "'", "\"")
	if err := json.Unmarshal([]byte(quoted), v); err != nil {
		return errors.ErrParseFailure.WithCause(fmt.Errorf("all strategies failed: %w", err))
	}
	return nil
}

// StripFences removes markdown code fences and any prose around the outermost
// JSON object or array.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	} else {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```"))
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}
