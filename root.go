package main

import (
	"github.com/spf13/cobra"

	"github.com/nijaru/yt-clip/config"
)

// commandContext loads configuration once per invocation.
type commandContext struct {
	verbose bool
	cfg     *config.Config
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// cliLogLevel keeps one-shot commands quiet unless --verbose is set.
func (c *commandContext) cliLogLevel() string {
	if c.verbose {
		return "debug"
	}
	return "warn"
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "yt-clip",
		Short:         "Cut YouTube clips and add AI generated subtitles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log debug output")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newClipCommand(ctx))
	rootCmd.AddCommand(newSubtitlesCommand())
	rootCmd.AddCommand(newCleanupCommand(ctx))

	return rootCmd
}
