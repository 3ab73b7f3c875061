package matcher

import (
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
)

// Entry lists longer than this screen for duplicates with a bloom filter
// first, so the exact check only keeps the keys the filter flagged.
const bloomThreshold = 10000

type normalizer[A any] struct {
	entries  []Entry[A]
	fallback *Fallback[A]
}

// Normalize flattens rules into entries plus at most one fallback.
// Or expands into one entry per alternative, all carrying the same action.
func Normalize[A any](rules []Rule[A]) ([]Entry[A], *Fallback[A], error) {
	n := &normalizer[A]{}
	for i, r := range rules {
		if err := n.add(i, r.Pattern, r.Action, true); err != nil {
			return nil, nil, err
		}
	}
	if err := checkDuplicates(n.entries); err != nil {
		return nil, nil, err
	}
	return n.entries, n.fallback, nil
}

func (n *normalizer[A]) add(rule int, p Pattern, action A, top bool) error {
	switch p.kind {
	case patLiteral:
		return n.entry(rule, p.lit, Exact, action)

	case patPrefix:
		if len(p.alts) != 1 || p.alts[0].kind != patLiteral {
			return fmt.Errorf("rule %d: %w: %s (prefix takes a single literal)", rule, ErrUnsupportedPattern, p)
		}
		return n.entry(rule, p.alts[0].lit, Prefix, action)

	case patOr:
		if len(p.alts) == 0 {
			return fmt.Errorf("rule %d: %w: empty alternation", rule, ErrUnsupportedPattern)
		}
		for _, alt := range p.alts {
			if alt.kind == patWildcard || alt.kind == patBinder {
				return fmt.Errorf("rule %d: %w: %s inside alternation", rule, ErrUnsupportedPattern, alt)
			}
			if err := n.add(rule, alt, action, false); err != nil {
				return err
			}
		}
		return nil

	case patWildcard, patBinder:
		if !top {
			return fmt.Errorf("rule %d: %w: nested %s", rule, ErrUnsupportedPattern, p)
		}
		if n.fallback != nil {
			return fmt.Errorf("rule %d: %w: rule %d already defines one", rule, ErrMultipleFallback, n.fallback.Rule)
		}
		if p.kind == patBinder && p.name == "" {
			return fmt.Errorf("rule %d: %w: binder without a name", rule, ErrUnsupportedPattern)
		}
		n.fallback = &Fallback[A]{Action: action, Name: p.name, Rule: rule}
		return nil
	}

	return fmt.Errorf("rule %d: %w: %s", rule, ErrUnsupportedPattern, p)
}

func (n *normalizer[A]) entry(rule int, b []byte, kind MatchKind, action A) error {
	n.entries = append(n.entries, Entry[A]{
		Bytes:  append([]byte(nil), b...),
		Kind:   kind,
		Action: action,
		Rule:   rule,
	})
	return nil
}

// checkDuplicates reports the first entry whose bytes and kind repeat an
// earlier one.
func checkDuplicates[A any](entries []Entry[A]) error {
	var candidates map[string]struct{}
	if len(entries) > bloomThreshold {
		candidates = bloomCandidates(entries)
		if len(candidates) == 0 {
			return nil
		}
	}

	seen := make(map[string]int, min(len(entries), bloomThreshold))
	for _, e := range entries {
		key := entryKey(e.Bytes, e.Kind)
		if candidates != nil {
			if _, ok := candidates[key]; !ok {
				continue
			}
		}
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("rule %d: %w: %s %q already defined by rule %d", e.Rule, ErrDuplicatePattern, e.Kind, e.Bytes, prev)
		}
		seen[key] = e.Rule
	}
	return nil
}

// bloomCandidates returns every key the filter had already seen when it
// was added. Real repeats are always included; false positives only cost
// an extra map entry.
func bloomCandidates[A any](entries []Entry[A]) map[string]struct{} {
	bf := bloom.NewWithEstimates(uint(len(entries)), 1e-4)
	candidates := make(map[string]struct{})
	for _, e := range entries {
		key := entryKey(e.Bytes, e.Kind)
		if bf.TestAndAddString(key) {
			candidates[key] = struct{}{}
		}
	}
	return candidates
}

func entryKey(b []byte, kind MatchKind) string {
	k := make([]byte, 0, len(b)+1)
	k = append(k, byte(kind))
	return string(append(k, b...))
}
