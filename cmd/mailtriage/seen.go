package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/store"
	"github.com/nhle/mailtriage/internal/theme"
)

func newSeenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seen <message-id>",
		Short: "Check whether a Message-ID was already processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(false)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			seen, err := st.Seen(ctx, args[0])
			if err != nil {
				return err
			}
			at, _, err := st.ProcessedAt(ctx, args[0])
			if err != nil {
				return err
			}
			total, err := st.Count(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case !seen:
				fmt.Fprintln(out, theme.HelpStyle.Render(args[0]+" has not been processed"))
			case at.IsZero():
				fmt.Fprintln(out, theme.OKStyle.Render(args[0]+" was processed"))
			default:
				fmt.Fprintln(out, theme.OKStyle.Render(args[0]+" was processed at "+at.Local().Format("2006-01-02 15:04:05")))
			}
			fmt.Fprintf(out, "%d messages recorded in %s\n", total, cfg.Store.Path)
			return nil
		},
	}
}
