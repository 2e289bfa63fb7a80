package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "List persona versions of a user, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			hist, err := a.Personas.History(cmd.Context(), uid, historyLimit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tWATERMARK\tMESSAGES\tMODEL\tCREATED")
			for _, p := range hist {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n",
					p.Version, p.LastProcessedMessageID, p.MessagesProcessed, p.Model, p.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of versions")
	return cmd
}
