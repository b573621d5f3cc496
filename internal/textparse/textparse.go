// Package textparse turns unreliable model output into typed values.
//
// Parse is total and pure: it never panics, performs no I/O, and always
// returns a value satisfying the shape's structural minimums. Resolution runs
// in three tiers, first success wins:
//
//  1. slice from the first opening bracket of the expected container to the
//     last matching closing bracket, decode it and validate the minimal fields
//     against the shape's JSON schema;
//  2. line heuristics: strip list markers and split each line into a short
//     title and an optional description;
//  3. the shape's deterministic fallback.
package textparse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type Tier string

const (
	TierJSON     Tier = "json"
	TierLines    Tier = "lines"
	TierFallback Tier = "fallback"
)

type Result[T any] struct {
	Value T
	Tier  Tier
}

// Line is one usable entry recovered by the line heuristics.
type Line struct {
	Title       string
	Description string
}

// Shape describes one expected output structure.
type Shape[T any] struct {
	Name string
	// Open is '{' for object-shaped values, '[' for array-shaped ones.
	Open   byte
	Schema *jsonschema.Schema
	// Decode converts schema-valid JSON into T; false rejects the value.
	Decode    func(data []byte) (T, bool)
	FromLines func(lines []Line) (T, bool)
	Fallback  func() T
}

// Parse resolves raw into a value of the shape. It never fails.
func Parse[T any](raw string, shape Shape[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Value: shape.Fallback(), Tier: TierFallback}
		}
	}()

	if v, ok := parseStructured(raw, shape); ok {
		return Result[T]{Value: v, Tier: TierJSON}
	}
	if shape.FromLines != nil {
		if lines := SplitLines(raw); len(lines) > 0 {
			if v, ok := shape.FromLines(lines); ok {
				return Result[T]{Value: v, Tier: TierLines}
			}
		}
	}
	return Result[T]{Value: shape.Fallback(), Tier: TierFallback}
}

func parseStructured[T any](raw string, shape Shape[T]) (T, bool) {
	var zero T
	data, ok := Extract(raw, shape.Open)
	if !ok {
		return zero, false
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return zero, false
	}
	if shape.Schema != nil {
		if err := shape.Schema.Validate(parsed); err != nil {
			return zero, false
		}
	}
	if shape.Decode == nil {
		return zero, false
	}
	return shape.Decode(data)
}

// Extract slices raw from the first open bracket to the last matching close
// bracket.
func Extract(raw string, open byte) ([]byte, bool) {
	var closeCh byte
	switch open {
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return nil, false
	}
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, closeCh)
	if start < 0 || end <= start {
		return nil, false
	}
	return []byte(raw[start : end+1]), true
}

const maxTitleRunes = 80

var (
	markerRe = regexp.MustCompile(`(?i)^(?:(?:\d{1,3}[.)]|[-*•]|#+|step\s+\d{1,3}[.:)]?)\s+)+`)
	// 按优先级排列的标题/描述分隔符
	delimiters = []string{" - ", " – ", " — ", ": "}
)

// SplitLines applies the line heuristics to raw text.
func SplitLines(raw string) []Line {
	var out []Line
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if l, ok := splitLine(line); ok {
			out = append(out, l)
		}
	}
	return out
}

func splitLine(line string) (Line, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "```") {
		return Line{}, false
	}
	switch line[0] {
	case '{', '}', '[', ']':
		return Line{}, false
	}

	line = cleanText(markerRe.ReplaceAllString(line, ""))
	if line == "" || strings.HasSuffix(line, ":") {
		return Line{}, false
	}

	for _, d := range delimiters {
		if i := strings.Index(line, d); i > 0 {
			title := cleanText(line[:i])
			desc := cleanText(line[i+len(d):])
			if title != "" && utf8.RuneCountInString(title) <= maxTitleRunes {
				return Line{Title: title, Description: desc}, true
			}
			break
		}
	}

	if utf8.RuneCountInString(line) <= maxTitleRunes {
		return Line{Title: line}, true
	}
	return Line{}, false
}

// cleanText trims whitespace, markdown emphasis and stray JSON punctuation.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ",")
	s = strings.Trim(s, "\"'`")
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}

// mustCompile compiles an inline JSON schema definition.
func mustCompile(name, def string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(def), &doc); err != nil {
		panic(fmt.Sprintf("textparse: schema %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("textparse: schema %s: %v", name, err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("textparse: schema %s: %v", name, err))
	}
	return compiled
}

// orDefault returns s, or def when s is blank.
func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
