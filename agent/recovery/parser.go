// Package recovery extracts a structured object from free-form oracle text.
//
// Model output routinely arrives wrapped in markdown fences, surrounded by prose, or with a
// trailing explanation. Parse runs an ordered list of strategies and stops at the first success;
// it never panics and always reports the original text on failure.
package recovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrUnparseable = errors.New("no json object in oracle output")

// ParseError carries the text that could not be recovered.
type ParseError struct {
	Raw      string
	Attempts []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (tried %s)", ErrUnparseable, strings.Join(e.Attempts, ", "))
}

func (e *ParseError) Unwrap() error { return ErrUnparseable }

// Strategy turns candidate text into a JSON object, reporting false when it does not apply.
type Strategy struct {
	Name string
	Try  func(text string) (map[string]any, bool)
}

var (
	fencePattern      = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)\\s*```")
	objectSpanPattern = regexp.MustCompile(`(?s)\{.*\}`)
	leadingProse      = regexp.MustCompile(`(?s)^[^{]*`)
	trailingProse     = regexp.MustCompile(`(?s)[^}]*$`)
)

// DefaultStrategies is the recovery order applied after fence stripping.
var DefaultStrategies = []Strategy{
	{Name: "direct", Try: parseDirect},
	{Name: "first_object_span", Try: parseObjectSpan},
	{Name: "strip_prose", Try: parseStrippedProse},
}

// Result is the outcome of Parse.
type Result struct {
	Object   map[string]any
	Strategy string
}

// Parse recovers one JSON object from raw using DefaultStrategies.
func Parse(raw string) (Result, error) {
	return ParseWith(raw, DefaultStrategies)
}

func ParseWith(raw string, strategies []Strategy) (res Result, err error) {
	attempts := make([]string, 0, len(strategies))
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = &ParseError{Raw: raw, Attempts: append(attempts, fmt.Sprintf("panic: %v", r))}
		}
	}()

	text := StripFences(raw)
	for _, s := range strategies {
		attempts = append(attempts, s.Name)
		if obj, ok := s.Try(text); ok {
			return Result{Object: obj, Strategy: s.Name}, nil
		}
	}
	return Result{}, &ParseError{Raw: raw, Attempts: attempts}
}

// Decode recovers an object and decodes it into T.
func Decode[T any](raw string) (T, error) {
	var out T
	res, err := Parse(raw)
	if err != nil {
		return out, err
	}
	b, err := json.Marshal(res.Object)
	if err != nil {
		return out, &ParseError{Raw: raw, Attempts: []string{res.Strategy, "remarshal"}}
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("%w: decode %T: %v", ErrUnparseable, out, err)
	}
	return out, nil
}

// StripFences returns the body of the first fenced code block, or the trimmed input.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func parseDirect(text string) (map[string]any, bool) {
	return unmarshalObject(strings.TrimSpace(text))
}

func parseObjectSpan(text string) (map[string]any, bool) {
	span := objectSpanPattern.FindString(text)
	if span == "" {
		return nil, false
	}
	if obj, ok := unmarshalObject(span); ok {
		return obj, true
	}
	// greedy span may swallow a second object; fall back to the first balanced one
	return unmarshalObject(firstBalanced(span))
}

func parseStrippedProse(text string) (map[string]any, bool) {
	body := leadingProse.ReplaceAllString(text, "")
	body = trailingProse.ReplaceAllString(body, "")
	if body == "" {
		return nil, false
	}
	return unmarshalObject(body)
}

func unmarshalObject(s string) (map[string]any, bool) {
	if s == "" || s[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return normalizeNumbers(obj).(map[string]any), true
}

// firstBalanced returns the first brace-balanced prefix of s, honoring string literals.
func firstBalanced(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			depth++
		case r == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
