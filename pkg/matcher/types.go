package matcher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type patternKind uint8

const (
	patLiteral patternKind = iota
	patPrefix
	patOr
	patWildcard
	patBinder
	patRange
)

// MatchKind says when a literal entry fires.
type MatchKind uint8

const (
	// Exact fires only when the source ends right after the entry's bytes.
	Exact MatchKind = iota
	// Prefix fires as soon as the entry's bytes have been read.
	Prefix
)

func (k MatchKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Prefix:
		return "prefix"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Pattern is the left-hand side of a rule. Build one with Literal, Text,
// Char, Byte, PrefixOf, Or, Wildcard, Binder or Range.
type Pattern struct {
	kind   patternKind
	lit    []byte
	name   string
	lo, hi byte
	alts   []Pattern
}

// Literal matches b exactly. The slice is copied.
func Literal(b []byte) Pattern {
	return Pattern{kind: patLiteral, lit: append([]byte(nil), b...)}
}

// Text is Literal over the bytes of s.
func Text(s string) Pattern {
	return Pattern{kind: patLiteral, lit: []byte(s)}
}

// Char is Literal over the UTF-8 encoding of r.
func Char(r rune) Pattern {
	return Pattern{kind: patLiteral, lit: utf8.AppendRune(nil, r)}
}

// Byte is the one-byte literal b.
func Byte(b byte) Pattern {
	return Pattern{kind: patLiteral, lit: []byte{b}}
}

// PrefixOf turns a literal into a prefix pattern. Anything other than a
// literal inside is rejected at compile time.
func PrefixOf(p Pattern) Pattern {
	return Pattern{kind: patPrefix, alts: []Pattern{p}}
}

// Or matches any of ps; all alternatives share the rule's action.
func Or(ps ...Pattern) Pattern {
	return Pattern{kind: patOr, alts: ps}
}

// Wildcard is the default rule that ignores what was read.
func Wildcard() Pattern {
	return Pattern{kind: patWildcard}
}

// Binder is the default rule that captures the bytes read up to the point
// where no other rule applied.
func Binder(name string) Pattern {
	return Pattern{kind: patBinder, name: name}
}

// Range is a byte class lo..hi. The trie has no representation for classes,
// so rules using it fail with ErrUnsupportedPattern; front ends can still
// produce it and get a precise error back.
func Range(lo, hi byte) Pattern {
	return Pattern{kind: patRange, lo: lo, hi: hi}
}

func (p Pattern) String() string {
	switch p.kind {
	case patLiteral:
		return strconv.Quote(string(p.lit))
	case patPrefix:
		if len(p.alts) == 1 {
			return "prefix(" + p.alts[0].String() + ")"
		}
		return "prefix(?)"
	case patOr:
		parts := make([]string, len(p.alts))
		for i, a := range p.alts {
			parts[i] = a.String()
		}
		return strings.Join(parts, " | ")
	case patWildcard:
		return "_"
	case patBinder:
		return p.name + "@_"
	case patRange:
		return fmt.Sprintf("%q..%q", p.lo, p.hi)
	}
	return "pattern(?)"
}

// Rule pairs a pattern with an opaque action. The matcher never inspects
// the action; it only hands it back in a Selection.
type Rule[A any] struct {
	Pattern Pattern
	Action  A
}

// Entry is one normalized (bytes, kind, action) triple. Rule is the index
// of the rule it was expanded from; entries from the same Or share it.
type Entry[A any] struct {
	Bytes  []byte
	Kind   MatchKind
	Action A
	Rule   int
}

// Fallback is the single default rule of a rule set.
type Fallback[A any] struct {
	Action A
	// Name is the binder name; empty for a plain wildcard.
	Name string
	Rule int
}

// Binds reports whether the fallback captures the consumed bytes.
func (f *Fallback[A]) Binds() bool { return f.Name != "" }

var (
	ErrDuplicatePattern   = errors.New("duplicate pattern")
	ErrMultipleFallback   = errors.New("multiple fallback rules")
	ErrUnsupportedPattern = errors.New("unsupported pattern")
	ErrIncompleteMatch    = errors.New("incomplete match")
)

// SourceError is returned by Match when the byte source fails. It is never
// retried; Unwrap gives the source's own error.
type SourceError struct {
	Err error
	// Offset is the number of bytes read successfully before the failure.
	Offset int
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("byte source failed after %d bytes: %v", e.Offset, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
