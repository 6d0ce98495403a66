// Package align rebuffers a chunk stream so that a fixed pattern is never
// split across two chunks.
//
// Downstream code can then detect the pattern with a plain containment test
// on each chunk instead of running a streaming matcher.
package align

import (
	"bytes"
	"io"
	"regexp"
	"strings"
)

// Chunk is the element type of an aligned stream: raw bytes or text.
type Chunk interface {
	~[]byte | ~string
}

// Source yields chunks until it returns io.EOF.
type Source[T Chunk] interface {
	Next() (T, error)
}

// Aligner reads from a Source and emits chunks that satisfy two guarantees:
//
//  1. every chunk except the last one is at least as long as the pattern
//  2. no chunk except the last one ends with a non-empty proper prefix of
//     the pattern
//
// The pattern may appear several times inside one emitted chunk.
// An Aligner is not safe for concurrent use.
type Aligner[T Chunk] struct {
	src     Source[T]
	pattern []byte
	tail    *regexp.Regexp
	acc     []byte
	pending bool
	done    bool
}

// New returns an Aligner over src. It panics if pattern is empty.
func New[T Chunk](src Source[T], pattern T) *Aligner[T] {
	if len(pattern) == 0 {
		panic("align: empty pattern")
	}
	p := []byte(pattern)
	return &Aligner[T]{
		src:     src,
		pattern: p,
		tail:    prefixMatcher(p),
	}
}

// Next returns the next aligned chunk, or io.EOF once the source is exhausted
// and all buffered data has been emitted.
func (a *Aligner[T]) Next() (T, error) {
	var zero T
	for !a.done {
		chunk, err := a.src.Next()
		if err == io.EOF {
			a.done = true
			break
		}
		if err != nil {
			return zero, err
		}
		a.acc = append(a.acc, chunk...)
		a.pending = true
		if len(a.acc) >= len(a.pattern) && !a.endsWithPrefix() {
			return a.flush(), nil
		}
	}
	if a.pending && len(a.acc) > 0 {
		return a.flush(), nil
	}
	return zero, io.EOF
}

func (a *Aligner[T]) flush() T {
	out := T(a.acc)
	a.acc = nil
	a.pending = false
	return out
}

// endsWithPrefix reports whether the buffer ends with a proper prefix of the
// pattern. Only the last len(pattern)-1 bytes can take part in such a match.
func (a *Aligner[T]) endsWithPrefix() bool {
	n := len(a.pattern) - 1
	if n == 0 {
		return false
	}
	tail := a.acc
	if len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	if a.tail != nil {
		return a.tail.Match(tail)
	}
	for i := min(n, len(tail)); i > 0; i-- {
		if bytes.Equal(tail[len(tail)-i:], a.pattern[:i]) {
			return true
		}
	}
	return false
}

// prefixMatcher compiles `(?:p[:n-1]|...|p[:1])$` for the pattern p. Non-ASCII
// patterns return nil, since a proper prefix may cut a multi-byte rune.
func prefixMatcher(pattern []byte) *regexp.Regexp {
	if len(pattern) < 2 || !isASCII(pattern) {
		return nil
	}
	alts := make([]string, 0, len(pattern)-1)
	for i := len(pattern) - 1; i > 0; i-- {
		alts = append(alts, regexp.QuoteMeta(string(pattern[:i])))
	}
	return regexp.MustCompile(`(?:` + strings.Join(alts, "|") + `)$`)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
