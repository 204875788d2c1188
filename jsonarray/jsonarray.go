// Package jsonarray extracts structurally complete elements from a growing,
// never-fully-valid JSON array buffer. The model streams `[ {...}, {...} ]`
// token by token, so at any instant the accumulated text is a prefix of valid
// JSON: missing its closing bracket, ending mid-element, or ending with a
// dangling comma.
//
// TryExtract is the pipeline implementation. It runs a depth-tracking
// tokenizer that knows when a `}` or `]` closes a top-level array element, so
// it never misclassifies brackets inside string values and never consumes a
// trailing element that may still grow. RepairExtract is the legacy
// string-suffix repair heuristic it replaced, retained standalone: it guesses
// from the buffer's suffix and will happily swallow an incomplete trailing
// scalar, so it must not gate a streaming buffer reset.
//
// Both report the flush-whole-buffer contract: when the buffer ends exactly
// at an element boundary every element accumulated so far is returned in one
// batch and the caller resets the buffer; otherwise nothing is consumed and
// the caller keeps accumulating. Extraction failure is expected and routine,
// not an error.
package jsonarray

import (
	"encoding/json"
	"strings"
)

// TryExtract tokenizes buf as the prefix of a JSON array and returns all
// top-level elements found when the buffer ends at an element boundary.
// Consumed reports whether the caller should reset its buffer: it is true
// only when at least one element closed and no partial trailing element
// remains. When consumed is false the returned slice is nil and the caller
// must keep accumulating.
func TryExtract(buf string) (elems []json.RawMessage, consumed bool) {
	s := newScanner(buf)
	elems = s.scan()
	if len(elems) == 0 || !s.boundary {
		return nil, false
	}
	return elems, true
}

// scanner walks the buffer byte by byte tracking string/escape state and
// bracket depth. It collects the byte range of each top-level element.
type scanner struct {
	buf string
	pos int

	// boundary is true when the scan ended between elements: after a closed
	// element followed only by whitespace, a separating comma, or the
	// array's closing bracket.
	boundary bool
}

func newScanner(buf string) *scanner {
	return &scanner{buf: buf}
}

func (s *scanner) scan() []json.RawMessage {
	s.skipSpace()
	if s.pos < len(s.buf) && s.buf[s.pos] == '[' {
		s.pos++
	}

	var elems []json.RawMessage
	for {
		s.skipSpace()
		// Between elements: a separator, the closing bracket or the end of
		// the buffer all leave us on a boundary.
		if s.pos >= len(s.buf) {
			s.boundary = true
			return elems
		}
		switch s.buf[s.pos] {
		case ',':
			s.pos++
			continue
		case ']':
			s.boundary = true
			return elems
		}
		start := s.pos
		if !s.element() {
			s.boundary = false
			return elems
		}
		elems = append(elems, json.RawMessage(s.buf[start:s.pos]))
	}
}

// element consumes one JSON value starting at s.pos and reports whether it is
// structurally complete.
func (s *scanner) element() bool {
	switch c := s.buf[s.pos]; {
	case c == '{' || c == '[':
		return s.composite()
	case c == '"':
		return s.string()
	default:
		return s.scalar()
	}
}

// composite consumes a balanced object or array, honoring strings and
// escapes so brackets inside values do not affect the depth count.
func (s *scanner) composite() bool {
	depth := 0
	for s.pos < len(s.buf) {
		switch s.buf[s.pos] {
		case '{', '[':
			depth++
			s.pos++
		case '}', ']':
			depth--
			s.pos++
			if depth == 0 {
				return true
			}
		case '"':
			if !s.string() {
				return false
			}
		default:
			s.pos++
		}
	}
	return false
}

// string consumes a quoted string including its closing quote.
func (s *scanner) string() bool {
	s.pos++ // opening quote
	for s.pos < len(s.buf) {
		switch s.buf[s.pos] {
		case '\\':
			s.pos += 2
		case '"':
			s.pos++
			return true
		default:
			s.pos++
		}
	}
	return false
}

// scalar consumes a number, true, false or null. A scalar is only known to be
// complete when a delimiter follows it: a trailing "12" may still grow into
// "123" on the next chunk.
func (s *scanner) scalar() bool {
	start := s.pos
	for s.pos < len(s.buf) {
		switch s.buf[s.pos] {
		case ',', ']', '}', ' ', '\t', '\n', '\r':
			return s.pos > start
		default:
			s.pos++
		}
	}
	return false
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.buf) {
		switch s.buf[s.pos] {
		case ' ', '\t', '\n', '\r':
			s.pos++
		default:
			return
		}
	}
}

// RepairExtract is the string-suffix repair heuristic: strip a leading '[',
// a trailing ']' and a dangling comma (including the two-comma case where the
// model closed one element and began the next key), re-wrap and attempt a
// full parse. Best effort only: it is fooled by brackets and commas inside
// string values, which is why TryExtract is the pipeline implementation.
func RepairExtract(buf string) (elems []json.RawMessage, consumed bool) {
	body := buf
	body = strings.TrimPrefix(body, "[")
	body = strings.TrimSuffix(body, "]")
	if strings.HasSuffix(body, ",") {
		body = body[:len(body)-1]
	} else if n := len(body); n >= 2 && body[n-2] == ',' {
		body = body[:n-2] + body[n-1:]
	} else if n := len(body); n >= 3 && body[n-3] == ',' {
		body = body[:n-3] + body[n-2:]
	}
	wrapped := "[" + body + "]"

	var out []json.RawMessage
	if err := json.Unmarshal([]byte(wrapped), &out); err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}
