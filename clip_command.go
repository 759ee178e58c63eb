package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nijaru/yt-clip/pipeline"
	"github.com/nijaru/yt-clip/utils"
)

func newClipCommand(ctx *commandContext) *cobra.Command {
	var (
		opts      pipeline.ClipOptions
		language  string
		embed     bool
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "clip <url>",
		Short: "Cut a clip and optionally generate and burn in subtitles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if embed && language == "" {
				return fmt.Errorf("--embed requires --subtitles")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logCloser, err := setupLogging(cfg, ctx.cliLogLevel())
			if err != nil {
				return err
			}
			defer logCloser.Close()

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return errors.Wrap(err, "failed to create output directory")
			}

			app, err := newApplication(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := app.sessions.Create()
			if err != nil {
				return err
			}
			defer app.sessions.Close(sess.ID, true)
			app.service.RegisterSession(cmd.Context(), sess)

			md, err := app.service.FetchMetadata(cmd.Context(), sess, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Clipping %q (%s)\n", md.Title, utils.FormatDuration(md.LengthSeconds))

			var outputs []string
			clip, err := app.service.CreateClip(cmd.Context(), sess, opts)
			if err != nil {
				return err
			}
			outputs = append(outputs, clip.Path)

			if language != "" {
				result, err := app.service.GenerateSubtitles(cmd.Context(), sess, language)
				if err != nil {
					return err
				}
				outputs = append(outputs, result.Path)
				if result.Transcript.Reason != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: sample subtitles used (%s)\n", result.Transcript.Reason)
				}
			}

			if embed {
				artifact, err := app.service.EmbedSubtitles(cmd.Context(), sess)
				if err != nil {
					return err
				}
				outputs = append(outputs, artifact.Path)
			}

			rows := make([][]string, 0, len(outputs))
			for _, src := range outputs {
				dst := filepath.Join(outputDir, filepath.Base(src))
				if err := utils.CopyFile(src, dst); err != nil {
					return errors.Wrapf(err, "failed to copy %s", filepath.Base(src))
				}
				size := int64(0)
				if info, err := os.Stat(dst); err == nil {
					size = info.Size()
				}
				rows = append(rows, []string{filepath.Base(dst), utils.HumanBytes(size)})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Size"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Start, "start", 0, "Clip start in seconds")
	cmd.Flags().IntVar(&opts.End, "end", 0, "Clip end in seconds")
	cmd.Flags().StringVar(&opts.Format, "format", "mp4", "Output format: mp4, webm or mkv")
	cmd.Flags().StringVar(&opts.Quality, "quality", "high", "Output quality: low, medium or high")
	cmd.Flags().StringVar(&language, "subtitles", "", "Generate subtitles in this language (en or es)")
	cmd.Flags().BoolVar(&embed, "embed", false, "Burn the generated subtitles into a copy of the clip")
	cmd.Flags().StringVarP(&outputDir, "out", "o", ".", "Directory to copy results into")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}
