package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nijaru/yt-clip/subtitles"
)

func newSubtitlesCommand() *cobra.Command {
	var outputDir, name string

	cmd := &cobra.Command{
		Use:   "subtitles <transcript.json>",
		Short: "Convert a speech model transcript to an SRT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to read transcript")
			}

			track, err := subtitles.ParseTranscript(data)
			if err != nil {
				return err
			}

			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return errors.Wrap(err, "failed to create output directory")
			}

			path, err := subtitles.Write(track, outputDir, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d cues to %s\n", len(track), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "out", "o", ".", "Output directory")
	cmd.Flags().StringVar(&name, "name", "", "Output base name (defaults to the input name)")
	return cmd
}
