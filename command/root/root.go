package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/attestra-network/attestra-executor/command/execute"
	"github.com/attestra-network/attestra-executor/command/fetch"
	"github.com/attestra-network/attestra-executor/command/version"
)

type RootCommand struct {
	baseCmd *cobra.Command
}

func NewRootCommand() *RootCommand {
	rootCommand := &RootCommand{
		baseCmd: &cobra.Command{
			Short: "Attestra executor runs Ethereum-compatible blocks deterministically and emits attestable execution proofs",
		},
	}

	rootCommand.registerSubCommands()

	return rootCommand
}

func (rc *RootCommand) registerSubCommands() {
	rc.baseCmd.AddCommand(
		version.GetCommand(),
		execute.GetCommand(),
		fetch.GetCommand(),
	)
}

func (rc *RootCommand) Execute() {
	if err := rc.baseCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
