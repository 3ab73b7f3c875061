package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bytematch/pkg/matcher"
)

func newMatchCmd() *cobra.Command {
	var rulesPath string
	cmd := &cobra.Command{
		Use:   "match [input]",
		Short: "Classify the argument, or stdin when no argument is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, rs, err := compileFile(rulesPath)
			if err != nil {
				return err
			}
			var src io.ByteScanner
			if len(args) == 1 {
				src = matcher.String(args[0])
			} else {
				src = matcher.Reader(os.Stdin)
			}
			return runMatch(cmd.OutOrStdout(), t, rs.Input(src))
		},
	}
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "rules.yaml", "rules yaml path")
	return cmd
}

func runMatch(w io.Writer, t *matcher.Trie[string], src io.ByteScanner) error {
	s, err := t.Match(src)
	if err != nil {
		return err
	}
	if s.Binding != "" {
		_, err = fmt.Fprintf(w, "%s %s=%q\n", s.Action, s.Binding, s.Captured)
		return err
	}
	_, err = fmt.Fprintf(w, "%s (%s, %d bytes)\n", s.Action, s.By, s.Consumed)
	return err
}
