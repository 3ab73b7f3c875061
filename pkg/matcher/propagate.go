package matcher

import (
	"fmt"
)

// propagate walks the trie in pre-order and gives every node an outcome
// for each of the 257 possible next inputs. Gaps are filled from the
// fallback rule; without one the build fails.
func (t *Trie[A]) propagate(structural bool) error {
	if t.fallback == nil && !structural {
		return fmt.Errorf("%w: rule set has no wildcard or binder rule", ErrIncompleteMatch)
	}

	path := make([]byte, 0, t.maxDepth)
	return t.visit(root, path)
}

func (t *Trie[A]) visit(id nodeID, path []byte) error {
	n := &t.nodes[id]

	var gaps fallbackSite
	if n.onContinue == none && len(n.edges) < 256 {
		gaps |= fbOnByte
	}
	if n.onEnd == none && n.onContinue == none {
		gaps |= fbOnEnd
	}

	if gaps != 0 {
		if t.fallback == nil {
			return fmt.Errorf("%w: no outcome after %q for %s", ErrIncompleteMatch, path, describeGaps(gaps, len(n.edges)))
		}
		n.fallback = gaps
		t.sites++
	}

	for _, e := range n.edges {
		if err := t.visit(e.to, append(path, e.b)); err != nil {
			return err
		}
	}
	return nil
}

func describeGaps(g fallbackSite, children int) string {
	switch g {
	case fbOnByte | fbOnEnd:
		return fmt.Sprintf("end of input and %d byte values", 256-children)
	case fbOnByte:
		return fmt.Sprintf("%d byte values", 256-children)
	}
	return "end of input"
}
