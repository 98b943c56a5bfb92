package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/app"
	"github.com/nhle/mailtriage/internal/metrics"
	"github.com/nhle/mailtriage/internal/theme"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the mailbox until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, err := opts.load(true)
			if err != nil {
				return err
			}

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Metrics.Listen != "" {
				go func() {
					if err := metrics.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
						log.Error().Err(err).Msg("metrics server stopped")
					}
				}()
			}

			err = a.Poller.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newOnceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single poll cycle and print what happened",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, err := opts.load(true)
			if err != nil {
				return err
			}

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Poller.RunCycle(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, theme.HeaderStyle.Render("cycle "+report.CycleID))
			fmt.Fprintf(out, "unseen: %d\n", report.Unseen)
			outcomes := make([]string, 0, len(report.Outcomes))
			for outcome := range report.Outcomes {
				outcomes = append(outcomes, outcome)
			}
			sort.Strings(outcomes)
			for _, outcome := range outcomes {
				fmt.Fprintf(out, "%s: %d\n", outcome, report.Outcomes[outcome])
			}
			if err != nil {
				fmt.Fprintln(out, theme.ErrorStyle.Render(err.Error()))
			}
			return err
		},
	}
}
