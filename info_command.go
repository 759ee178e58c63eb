package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nijaru/yt-clip/scripts"
	"github.com/nijaru/yt-clip/utils"
	"github.com/nijaru/yt-clip/validation"
	"github.com/nijaru/yt-clip/youtube"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <url>",
		Short: "Show title, length and views of a YouTube video",
		Args:  cobra.ExactArgs(1),
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

			if err := validation.ValidateURL(args[0]); err != nil {
				return err
			}

			fetcher := newFetcher(cfg, scripts.NewExecRunner(logrus.StandardLogger()))
			md, err := fetcher.FetchMetadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderMetadata(md))
			return nil
		},
	}
}

func renderMetadata(md *youtube.Metadata) string {
	published := ""
	if md.PublishDate != nil {
		published = md.PublishDate.Format("2006-01-02")
	}
	return renderKeyValues([][2]string{
		{"Title", md.Title},
		{"Author", md.Author},
		{"ID", md.ID},
		{"Length", utils.FormatDuration(md.LengthSeconds)},
		{"Views", utils.HumanCount(md.ViewCount)},
		{"Published", published},
		{"Thumbnail", md.ThumbnailURL},
		{"Source", string(md.Source)},
	})
}
