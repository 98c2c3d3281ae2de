// Package parse turns untrusted model output into typed values.
//
// Model responses are frequently valid JSON wrapped in prose, markdown
// fences, or slightly broken JSON. Rather than nesting fallbacks, callers
// describe an ordered list of strategies and Chain runs them in order,
// stopping at the first one that yields Ok.
//
//	res := parse.Chain(raw, parse.JSON[conceptList]()...)
//	list := res.OrElse(conceptList{})
//
// A Result is either Ok(value) or Malformed(raw). Malformed results keep
// the original text so it can be logged.
package parse
