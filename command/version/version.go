package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time through ldflags.
var (
	Version = "dev"
	Commit  = ""
)

func GetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Returns the executor version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := Version
			if Commit != "" {
				out += " (" + Commit + ")"
			}

			fmt.Fprintln(cmd.OutOrStdout(), out)
		},
	}
}
