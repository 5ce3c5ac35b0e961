package main

import (
	"os"

	"github.com/epicwp/translation-orchestrator/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	command := NewOrchestratorCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewOrchestratorCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orchestratorctl [flags] [options]",
		Short: "orchestratorctl controls the translation orchestrator.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdCreate())
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdCancel())
	cmd.AddCommand(cli.NewCmdDelete())
	cmd.AddCommand(cli.NewCmdDiscover())
	cmd.AddCommand(cli.NewCmdRecover())
	cmd.AddCommand(cli.NewCmdTranslate())

	return cmd
}
