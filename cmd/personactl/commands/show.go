package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showFormat string

func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the latest persona of a user",
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

			p, err := a.Engine.GetLatestPersona(cmd.Context(), uid)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("user %d has no persona yet", uid)
			}

			out := cmd.OutOrStdout()
			if showFormat == "json" {
				return printJSON(out, p)
			}
			fmt.Fprintf(out, "user %d  version %d  watermark %d  messages %d  %s\n",
				p.UserID, p.Version, p.LastProcessedMessageID, p.MessagesProcessed, p.CreatedAt.Format("2006-01-02 15:04"))
			if tags := p.TagList(); len(tags) > 0 {
				fmt.Fprintf(out, "tags: %s\n", strings.Join(tags, ", "))
			}
			fmt.Fprintf(out, "\n%s\n", p.PersonaText)
			return nil
		},
	}
	cmd.Flags().StringVar(&showFormat, "format", "text", "Output format (text, json)")
	return cmd
}
