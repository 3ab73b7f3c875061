package matcher

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
)

type nodeID uint32

const root nodeID = 0

// none marks an unset entry slot on a node.
const none int32 = -1

type fallbackSite uint8

const (
	fbOnByte fallbackSite = 1 << iota
	fbOnEnd
)

type edge struct {
	b  byte
	to nodeID
}

// node is one trie state. onEnd and onContinue index into Trie.entries.
type node struct {
	edges      []edge // sorted by b
	onEnd      int32
	onContinue int32
	fallback   fallbackSite
	depth      int
}

func (n *node) child(b byte) (nodeID, bool) {
	i, ok := slices.BinarySearchFunc(n.edges, b, func(e edge, b byte) int {
		return cmp.Compare(e.b, b)
	})
	if !ok {
		return 0, false
	}
	return n.edges[i].to, true
}

// Trie is a compiled rule set. It is immutable once Compile returns and
// safe for any number of concurrent Match calls.
type Trie[A any] struct {
	nodes    []node
	entries  []Entry[A]
	fallback *Fallback[A]
	shadowed []Shadow
	maxDepth int
	sites    int
}

type options struct {
	log        zerolog.Logger
	structural bool
}

// Option configures Compile.
type Option func(*options)

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStructuralExhaustiveness accepts rule sets without a fallback as long
// as every node already covers all 256 bytes and end of input. Without it,
// any rule set lacking a fallback is rejected.
func WithStructuralExhaustiveness() Option {
	return func(o *options) { o.structural = true }
}

// Compile normalizes rules, builds the trie and installs fallbacks. On
// error no trie is returned.
func Compile[A any](rules []Rule[A], opts ...Option) (*Trie[A], error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	entries, fb, err := Normalize(rules)
	if err != nil {
		return nil, err
	}

	t, err := build(entries)
	if err != nil {
		return nil, err
	}
	t.fallback = fb

	if err := t.propagate(o.structural); err != nil {
		return nil, err
	}

	t.shadowed = findShadowed(entries)
	for _, s := range t.shadowed {
		o.log.Warn().
			Int("rule", s.Rule).
			Str("kind", s.Kind.String()).
			Bytes("bytes", s.Bytes).
			Int("shadowed_by", s.By).
			Msg("pattern is unreachable behind a shorter prefix rule")
	}

	o.log.Debug().
		Int("rules", len(rules)).
		Int("entries", len(entries)).
		Int("nodes", len(t.nodes)).
		Int("max_depth", t.maxDepth).
		Int("fallback_sites", t.sites).
		Msg("trie compiled")

	return t, nil
}

// build inserts every entry, sharing nodes along common prefixes.
func build[A any](entries []Entry[A]) (*Trie[A], error) {
	t := &Trie[A]{entries: entries}
	t.nodes = append(t.nodes, node{onEnd: none, onContinue: none})

	for i, e := range entries {
		id := root
		for _, b := range e.Bytes {
			id = t.childOrCreate(id, b)
		}

		n := &t.nodes[id]
		switch e.Kind {
		case Exact:
			if n.onEnd != none {
				return nil, fmt.Errorf("rule %d: %w: exact %q already set by rule %d", e.Rule, ErrDuplicatePattern, e.Bytes, t.entries[n.onEnd].Rule)
			}
			n.onEnd = int32(i)
		case Prefix:
			if n.onContinue != none {
				return nil, fmt.Errorf("rule %d: %w: prefix %q already set by rule %d", e.Rule, ErrDuplicatePattern, e.Bytes, t.entries[n.onContinue].Rule)
			}
			n.onContinue = int32(i)
		}
	}
	return t, nil
}

func (t *Trie[A]) childOrCreate(id nodeID, b byte) nodeID {
	if next, ok := t.nodes[id].child(b); ok {
		return next
	}

	next := nodeID(len(t.nodes))
	depth := t.nodes[id].depth + 1
	t.nodes = append(t.nodes, node{onEnd: none, onContinue: none, depth: depth})
	if depth > t.maxDepth {
		t.maxDepth = depth
	}

	n := &t.nodes[id]
	i, _ := slices.BinarySearchFunc(n.edges, b, func(e edge, b byte) int {
		return cmp.Compare(e.b, b)
	})
	n.edges = slices.Insert(n.edges, i, edge{b: b, to: next})
	return next
}

// Fallback returns the rule set's default rule, or nil.
func (t *Trie[A]) Fallback() *Fallback[A] { return t.fallback }

// Entries returns the normalized entries in rule order.
func (t *Trie[A]) Entries() []Entry[A] { return t.entries }

// Shadowed lists entries that can never be selected because a shorter
// prefix rule commits before their last byte is read.
func (t *Trie[A]) Shadowed() []Shadow { return t.shadowed }

type Stats struct {
	Nodes         int
	Entries       int
	MaxDepth      int
	FallbackSites int
	HasFallback   bool
	Binds         bool
}

func (t *Trie[A]) Stats() Stats {
	s := Stats{
		Nodes:         len(t.nodes),
		Entries:       len(t.entries),
		MaxDepth:      t.maxDepth,
		FallbackSites: t.sites,
	}
	if t.fallback != nil {
		s.HasFallback = true
		s.Binds = t.fallback.Binds()
	}
	return s
}
