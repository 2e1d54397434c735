package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "helpdesk",
		Short: "Helpdesk ticketing and security incident service.",
		Long: `Helpdesk tracks support tickets and security incidents for every branch,
escalates tickets into incidents and keeps an audit trail of every change.
Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
	serve := newServeCommand()
	root.RunE = serve.RunE
	root.AddCommand(serve, newMigrateCommand(), newBootstrapAdminCommand(), newTokenCommand())
	return root
}
