package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one persona update over every user",
		Long: `Run one persona update pass over every known user and print the report.

Users below the minimum message threshold are skipped; failures are counted
and retried on the next sweep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Engine.RunPersonaUpdate(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}
