package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bytematch/internal/rules"
	"bytematch/pkg/matcher"
)

type checkOptions struct {
	rulesPath  string
	structural bool
	strict     bool
}

func newCheckCmd() *cobra.Command {
	opts := checkOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compile a rules file and report trie stats and unreachable patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), opts)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&opts.rulesPath, "rules", "r", "rules.yaml", "rules yaml path")
	fs.BoolVar(&opts.structural, "structural", false, "accept rule sets without a fallback when every byte is covered")
	fs.BoolVar(&opts.strict, "strict", false, "fail when any pattern is unreachable")
	return cmd
}

func compileFile(path string, opts ...matcher.Option) (*matcher.Trie[string], rules.Set, error) {
	doc, err := rules.Load(path)
	if err != nil {
		return nil, rules.Set{}, err
	}
	rs, err := doc.Set()
	if err != nil {
		return nil, rules.Set{}, err
	}
	t, err := matcher.Compile(rs.Rules, opts...)
	return t, rs, err
}

func runCheck(w io.Writer, opts checkOptions) error {
	var copts []matcher.Option
	if opts.structural {
		copts = append(copts, matcher.WithStructuralExhaustiveness())
	}
	t, _, err := compileFile(opts.rulesPath, copts...)
	if err != nil {
		return err
	}

	st := t.Stats()
	fmt.Fprintf(w, "entries=%d nodes=%d max_depth=%d fallback_sites=%d\n", st.Entries, st.Nodes, st.MaxDepth, st.FallbackSites)
	for _, s := range t.Shadowed() {
		fmt.Fprintf(w, "unreachable: rule %d %s %q is behind prefix %q of rule %d\n", s.Rule, s.Kind, s.Bytes, s.ByBytes, s.By)
	}
	if opts.strict && len(t.Shadowed()) > 0 {
		return fmt.Errorf("%d unreachable patterns", len(t.Shadowed()))
	}
	return nil
}
