package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:           "bytematch",
		Short:         "Compile byte pattern rules into a trie and classify byte streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if pretty {
				log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human readable log output")

	cmd.AddCommand(newServeCmd(), newCheckCmd(), newMatchCmd())
	return cmd
}
