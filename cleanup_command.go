package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nijaru/yt-clip/janitor"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete session files older than the retention TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logCloser, err := setupLogging(cfg, ctx.cliLogLevel())
			if err != nil {
				return err
			}
			defer logCloser.Close()

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := janitor.New(store, cfg.TempDir, cfg.Retention.TTL).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d sessions and %d orphaned directories; %d in use\n",
				len(report.Removed), report.Orphans, len(report.Skipped))
			return nil
		},
	}
}
