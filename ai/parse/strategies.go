// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Strategy names.
const (
	StrategyDirect    = "direct"
	StrategyFenced    = "fenced"
	StrategyBracketed = "bracketed"
	StrategyRepaired  = "repaired"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// JSON returns the standard ordered strategy list: direct, fenced,
// bracketed, repaired.
func JSON[T any]() []Strategy[T] {
	return []Strategy[T]{Direct[T](), Fenced[T](), Bracketed[T](), Repaired[T]()}
}

// Direct unmarshals the trimmed text as-is.
func Direct[T any]() Strategy[T] {
	return Strategy[T]{Name: StrategyDirect, Parse: func(raw string) (T, bool) {
		return unmarshal[T](strings.TrimSpace(raw))
	}}
}

// Fenced unmarshals the contents of the first markdown code fence.
func Fenced[T any]() Strategy[T] {
	return Strategy[T]{Name: StrategyFenced, Parse: func(raw string) (T, bool) {
		m := fencePattern.FindStringSubmatch(raw)
		if m == nil {
			var zero T
			return zero, false
		}
		return unmarshal[T](strings.TrimSpace(m[1]))
	}}
}

// Bracketed unmarshals the outermost {...} or [...] span embedded in prose.
func Bracketed[T any]() Strategy[T] {
	return Strategy[T]{Name: StrategyBracketed, Parse: func(raw string) (T, bool) {
		span, ok := outermost(raw)
		if !ok {
			var zero T
			return zero, false
		}
		return unmarshal[T](span)
	}}
}

// Repaired fixes common formatting mistakes before unmarshaling.
func Repaired[T any]() Strategy[T] {
	return Strategy[T]{Name: StrategyRepaired, Parse: func(raw string) (T, bool) {
		text := raw
		if m := fencePattern.FindStringSubmatch(raw); m != nil {
			text = m[1]
		}
		if span, ok := outermost(text); ok {
			text = span
		}
		return unmarshal[T](RepairJSON(text))
	}}
}

// Regex builds a strategy from a field extractor.
func Regex[T any](name string, extract func(raw string) (T, bool)) Strategy[T] {
	return Strategy[T]{Name: name, Parse: extract}
}

// NumberField extracts a numeric value for key, written as `"key": 0.7`,
// `key = 0.7`, or `key: 0.7`.
func NumberField(key string) Strategy[float64] {
	pattern := regexp.MustCompile(`(?i)["']?` + regexp.QuoteMeta(key) + `["']?\s*[:=]\s*(-?\d+(?:\.\d+)?)`)
	return Regex("field:"+key, func(raw string) (float64, bool) {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	})
}

var quotedPattern = regexp.MustCompile(`"([^"\n]{1,80})"|'([^'\n]{1,80})'`)

// QuotedStrings extracts every short quoted string, skipping any listed keys.
func QuotedStrings(skip ...string) Strategy[[]string] {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[strings.ToLower(s)] = true
	}
	return Regex("quoted", func(raw string) ([]string, bool) {
		var out []string
		for _, m := range quotedPattern.FindAllStringSubmatch(raw, -1) {
			s := m[1]
			if s == "" {
				s = m[2]
			}
			s = strings.TrimSpace(s)
			if s == "" || skipSet[strings.ToLower(s)] {
				continue
			}
			out = append(out, s)
		}
		return out, len(out) > 0
	})
}

var listItemPattern = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+?)\s*$`)

// ListItems extracts markdown bullet or numbered list items.
func ListItems() Strategy[[]string] {
	return Regex("list", func(raw string) ([]string, bool) {
		var out []string
		for _, m := range listItemPattern.FindAllStringSubmatch(raw, -1) {
			item := strings.Trim(m[1], "\"'`*")
			if item != "" {
				out = append(out, item)
			}
		}
		return out, len(out) > 0
	})
}

func unmarshal[T any](text string) (T, bool) {
	var v T
	if text == "" {
		return v, false
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// outermost returns the span from the first opening bracket to its
// matching closing bracket, or to the last closing bracket of that kind.
func outermost(raw string) (string, bool) {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return "", false
	}
	open := raw[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}

	end := strings.LastIndexByte(raw, closeCh)
	if end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
