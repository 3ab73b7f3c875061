package matcher

import (
	"errors"
	"io"
)

// SelectedBy says which part of the trie produced a Selection.
type SelectedBy uint8

const (
	ByExact SelectedBy = iota
	ByPrefix
	ByFallback
)

func (s SelectedBy) String() string {
	switch s {
	case ByExact:
		return "exact"
	case ByPrefix:
		return "prefix"
	case ByFallback:
		return "fallback"
	}
	return "unknown"
}

// Selection is the single outcome of a match.
type Selection[A any] struct {
	Action A
	By     SelectedBy
	// Rule is the index of the rule that produced the action.
	Rule int
	// Binding and Captured are set when a binder fallback fired.
	Binding  string
	Captured []byte
	// Consumed counts the bytes the match claimed from the source. A
	// prefix match leaves the byte after its last one unread.
	Consumed int
}

// Match pulls bytes from src one at a time until an outcome is reached.
//
// io.EOF from src means the input ended; an exact rule on the current node
// wins over a prefix rule there. Any other error aborts the match
// at once with a *SourceError, whatever the state of the walk. When a
// prefix rule commits, the byte that triggered the commit is pushed back,
// so Match can be called again on the same src to continue from there.
// Wrap plain byte readers with Pushback or Reader.
func (t *Trie[A]) Match(src io.ByteScanner) (Selection[A], error) {
	var scratch [64]byte
	path := scratch[:0]
	id := root

	for {
		b, err := src.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Selection[A]{}, &SourceError{Err: err, Offset: len(path)}
			}
			n := &t.nodes[id]
			switch {
			case n.onEnd != none:
				return t.selectEntry(n.onEnd, len(path)), nil
			case n.onContinue != none:
				return t.selectEntry(n.onContinue, len(path)), nil
			}
			return t.selectFallback(n, fbOnEnd, path), nil
		}

		n := &t.nodes[id]
		if n.onContinue != none {
			if err := src.UnreadByte(); err != nil {
				return Selection[A]{}, &SourceError{Err: err, Offset: len(path)}
			}
			return t.selectEntry(n.onContinue, len(path)), nil
		}
		if next, ok := n.child(b); ok {
			path = append(path, b)
			id = next
			continue
		}
		return t.selectFallback(n, fbOnByte, append(path, b)), nil
	}
}

func (t *Trie[A]) selectEntry(i int32, consumed int) Selection[A] {
	e := &t.entries[i]
	by := ByExact
	if e.Kind == Prefix {
		by = ByPrefix
	}
	return Selection[A]{
		Action:   e.Action,
		By:       by,
		Rule:     e.Rule,
		Consumed: consumed,
	}
}

func (t *Trie[A]) selectFallback(n *node, site fallbackSite, path []byte) Selection[A] {
	if n.fallback&site == 0 || t.fallback == nil {
		panic("matcher: node has no outcome for this input; trie was not built by Compile")
	}
	s := Selection[A]{
		Action:   t.fallback.Action,
		By:       ByFallback,
		Rule:     t.fallback.Rule,
		Consumed: len(path),
	}
	if t.fallback.Binds() {
		s.Binding = t.fallback.Name
		s.Captured = append(make([]byte, 0, len(path)), path...)
	}
	return s
}

// Run matches src and hands the selection to eval exactly once. Source
// failures are returned without calling eval.
func Run[A, R any](t *Trie[A], src io.ByteScanner, eval func(Selection[A]) R) (R, error) {
	s, err := t.Match(src)
	if err != nil {
		var zero R
		return zero, err
	}
	return eval(s), nil
}
