package commands

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "personactl",
		Short: "Operate the persona engine",
		Long: `Operate the persona engine against the configured database.

Configuration comes from the environment (and a .env file when present),
the same variables the api and worker read.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		NewSweepCmd(),
		NewBuildCmd(),
		NewShowCmd(),
		NewHistoryCmd(),
		NewTokenCmd(),
		NewMigrateCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}
