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
	"fmt"

	"github.com/poiesic/marginalia/core"
)

// Result is Ok(value) or Malformed(raw).
type Result[T any] struct {
	value    T
	raw      string
	strategy string
	ok       bool
}

// Ok wraps a successfully parsed value.
func Ok[T any](value T, strategy string) Result[T] {
	return Result[T]{value: value, strategy: strategy, ok: true}
}

// Malformed records text that no strategy could parse.
func Malformed[T any](raw string) Result[T] {
	return Result[T]{raw: raw}
}

// IsOk reports whether parsing succeeded.
func (r Result[T]) IsOk() bool {
	return r.ok
}

// Get returns the value and whether it is valid.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.ok
}

// OrElse returns the parsed value, or def when malformed.
func (r Result[T]) OrElse(def T) T {
	if r.ok {
		return r.value
	}
	return def
}

// Raw returns the unparsed text of a Malformed result.
func (r Result[T]) Raw() string {
	return r.raw
}

// Strategy names the strategy that produced an Ok result.
func (r Result[T]) Strategy() string {
	return r.strategy
}

// Err returns nil for Ok and a wrapped core.ErrMalformedResponse otherwise.
func (r Result[T]) Err() error {
	if r.ok {
		return nil
	}
	raw := r.raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Errorf("%w: %q", core.ErrMalformedResponse, raw)
}

// Strategy attempts to parse raw text.
type Strategy[T any] struct {
	Name  string
	Parse func(raw string) (T, bool)
}

// Chain runs strategies in order and returns the first Ok result.
// If every strategy fails, it returns Malformed(raw).
func Chain[T any](raw string, strategies ...Strategy[T]) Result[T] {
	for _, s := range strategies {
		if v, ok := s.Parse(raw); ok {
			return Ok(v, s.Name)
		}
	}
	return Malformed[T](raw)
}

// Validated wraps a strategy so that parsed values failing check count as failures.
func Validated[T any](s Strategy[T], check func(T) bool) Strategy[T] {
	return Strategy[T]{
		Name: s.Name,
		Parse: func(raw string) (T, bool) {
			v, ok := s.Parse(raw)
			if !ok || !check(v) {
				var zero T
				return zero, false
			}
			return v, true
		},
	}
}

// All applies check to every strategy.
func All[T any](check func(T) bool, strategies ...Strategy[T]) []Strategy[T] {
	out := make([]Strategy[T], len(strategies))
	for i, s := range strategies {
		out[i] = Validated(s, check)
	}
	return out
}
