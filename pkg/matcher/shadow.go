package matcher

import (
	"github.com/armon/go-radix"
)

// Shadow describes an entry hidden behind a shorter prefix rule.
type Shadow struct {
	Rule  int
	Kind  MatchKind
	Bytes []byte
	// By is the rule whose prefix commits first; ByBytes is that prefix.
	By      int
	ByBytes []byte
}

// findShadowed reports every entry whose bytes strictly extend a prefix
// entry. The walk commits at the shortest such prefix, so that is the one
// reported.
func findShadowed[A any](entries []Entry[A]) []Shadow {
	tree := radix.New()
	for i, e := range entries {
		if e.Kind == Prefix {
			tree.Insert(string(e.Bytes), i)
		}
	}
	if tree.Len() == 0 {
		return nil
	}

	var out []Shadow
	for _, e := range entries {
		if len(e.Bytes) == 0 {
			continue
		}
		key := string(e.Bytes[:len(e.Bytes)-1])
		tree.WalkPath(key, func(s string, v interface{}) bool {
			by := entries[v.(int)]
			out = append(out, Shadow{
				Rule:    e.Rule,
				Kind:    e.Kind,
				Bytes:   e.Bytes,
				By:      by.Rule,
				ByBytes: by.Bytes,
			})
			return true
		})
	}
	return out
}
