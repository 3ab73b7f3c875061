// Package rules reads rule sets written in YAML (or the same shape in JSON)
// and turns them into matcher rules whose actions are plain labels.
package rules

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/idna"
	"gopkg.in/yaml.v3"

	"bytematch/pkg/matcher"
)

const (
	FoldNone  = ""
	FoldLower = "lower"
	FoldIDNA  = "idna"
)

type Document struct {
	// Fold canonicalizes exact and prefix literals before compiling. Input
	// is folded to match when the set is used through Set.Input.
	Fold  string     `yaml:"fold,omitempty" json:"fold,omitempty"`
	Rules []RuleSpec `yaml:"rules" json:"rules"`
}

// RuleSpec is one rule. Exactly one of Exact, Prefix, Any, Range, Wildcard
// or Bind must be set.
type RuleSpec struct {
	Exact    *string    `yaml:"exact,omitempty" json:"exact,omitempty"`
	Prefix   *string    `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Any      []RuleSpec `yaml:"any,omitempty" json:"any,omitempty"`
	Range    string     `yaml:"range,omitempty" json:"range,omitempty"`
	Wildcard bool       `yaml:"wildcard,omitempty" json:"wildcard,omitempty"`
	Bind     string     `yaml:"bind,omitempty" json:"bind,omitempty"`
	// Hex marks Exact and Prefix values as hex-encoded bytes.
	Hex    bool   `yaml:"hex,omitempty" json:"hex,omitempty"`
	Action string `yaml:"action,omitempty" json:"action,omitempty"`
}

func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &doc, nil
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(data)
}

// Set is a converted document: matcher rules plus the fold their
// literals went through.
type Set struct {
	Rules []matcher.Rule[string]
	Fold  string
}

// Input folds src the same way the rule literals were folded. IDNA sets
// only get ASCII case folding here; non-ASCII labels must arrive in their
// xn-- form.
func (s Set) Input(src io.ByteScanner) io.ByteScanner {
	if s.Fold == FoldNone {
		return src
	}
	return matcher.LowerASCII(src)
}

// Set converts the document into matcher rules.
func (d *Document) Set() (Set, error) {
	switch d.Fold {
	case FoldNone, FoldLower, FoldIDNA:
	default:
		return Set{}, fmt.Errorf("unknown fold %q", d.Fold)
	}

	out := make([]matcher.Rule[string], 0, len(d.Rules))
	for i, spec := range d.Rules {
		p, err := d.pattern(spec)
		if err != nil {
			return Set{}, fmt.Errorf("rule %d: %w", i, err)
		}
		if spec.Action == "" {
			return Set{}, fmt.Errorf("rule %d: action is required", i)
		}
		out = append(out, matcher.Rule[string]{Pattern: p, Action: spec.Action})
	}
	return Set{Rules: out, Fold: d.Fold}, nil
}

func (d *Document) pattern(s RuleSpec) (matcher.Pattern, error) {
	set := 0
	for _, ok := range []bool{s.Exact != nil, s.Prefix != nil, len(s.Any) > 0, s.Range != "", s.Wildcard, s.Bind != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return matcher.Pattern{}, errors.New("exactly one of exact, prefix, any, range, wildcard or bind must be set")
	}

	switch {
	case s.Exact != nil:
		b, err := d.literal(*s.Exact, s.Hex)
		if err != nil {
			return matcher.Pattern{}, err
		}
		return matcher.Literal(b), nil

	case s.Prefix != nil:
		b, err := d.literal(*s.Prefix, s.Hex)
		if err != nil {
			return matcher.Pattern{}, err
		}
		return matcher.PrefixOf(matcher.Literal(b)), nil

	case len(s.Any) > 0:
		alts := make([]matcher.Pattern, 0, len(s.Any))
		for j, alt := range s.Any {
			p, err := d.pattern(alt)
			if err != nil {
				return matcher.Pattern{}, fmt.Errorf("any[%d]: %w", j, err)
			}
			alts = append(alts, p)
		}
		return matcher.Or(alts...), nil

	case s.Range != "":
		if len(s.Range) != 3 || s.Range[1] != '-' {
			return matcher.Pattern{}, fmt.Errorf("range %q must look like a-z", s.Range)
		}
		return matcher.Range(s.Range[0], s.Range[2]), nil

	case s.Wildcard:
		return matcher.Wildcard(), nil
	}
	return matcher.Binder(s.Bind), nil
}

func (d *Document) literal(v string, isHex bool) ([]byte, error) {
	if isHex {
		b, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("hex literal %q: %w", v, err)
		}
		return b, nil
	}

	switch d.Fold {
	case FoldLower:
		v = strings.Map(lowerASCII, v)
	case FoldIDNA:
		puny, err := idna.Lookup.ToASCII(strings.ToLower(strings.TrimSuffix(v, ".")))
		if err != nil {
			return nil, fmt.Errorf("idna %q: %w", v, err)
		}
		v = puny
	}
	return []byte(v), nil
}

// lowerASCII leaves non-ASCII alone so literals fold exactly like input
// read through matcher.LowerASCII.
func lowerASCII(r rune) rune {
	if 'A' <= r && r <= 'Z' {
		return r + 'a' - 'A'
	}
	return r
}
