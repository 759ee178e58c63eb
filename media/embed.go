package media

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/scripts"
	"github.com/nijaru/yt-clip/utils"
)

const (
	subtitleStyle = "FontSize=24,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,BorderStyle=3"

	fallbackVideoName  = "temp_video"
	fallbackSubsName   = "temp_subs.srt"
	fallbackOutputName = "temp_output"
)

// EmbedRequest burns SubtitlePath into ClipPath. The output is written next
// to the clip as <clip base>_subtitled.<format>.
type EmbedRequest struct {
	ClipPath     string
	SubtitlePath string
	Format       Format
}

// Embedder burns subtitles into a clip. The fallback attempt uses fixed file
// names inside the clip's directory, so callers must own that directory
// exclusively while Embed runs.
type Embedder struct {
	runner   scripts.Runner
	ffmpeg   string
	platform string
}

func NewEmbedder(runner scripts.Runner, ffmpegPath string) *Embedder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Embedder{runner: runner, ffmpeg: ffmpegPath, platform: runtime.GOOS}
}

// SubtitledPath returns where Embed writes its output for clipPath.
func SubtitledPath(clipPath string, format Format) string {
	dir := filepath.Dir(clipPath)
	base := strings.TrimSuffix(filepath.Base(clipPath), filepath.Ext(clipPath))
	return filepath.Join(dir, base+"_subtitled."+format.Extension())
}

// SubtitleFilter builds the -vf value for the given platform.
func SubtitleFilter(subtitlePath, platform string) string {
	if platform == "windows" {
		escaped := strings.ReplaceAll(subtitlePath, `\`, "/")
		escaped = strings.ReplaceAll(escaped, ":", `\:`)
		return "subtitles='" + escaped + "'"
	}
	return "subtitles=" + subtitlePath + ":force_style='" + subtitleStyle + "'"
}

func embedArgs(clipPath, outputPath, filter string) []string {
	return ffmpeg.Input(clipPath).
		Output(outputPath, ffmpeg.KwArgs{
			"vf":  filter,
			"c:a": "copy",
		}).
		OverWriteOutput().
		GetArgs()
}

// Embed tries the platform filter first. If ffmpeg fails it retries once with
// the inputs copied to plain relative names in the clip directory, which
// sidesteps filter path escaping problems.
func (e *Embedder) Embed(ctx context.Context, req EmbedRequest) (*Artifact, error) {
	const op = "Embedder.Embed"

	for _, p := range []string{req.ClipPath, req.SubtitlePath} {
		if _, err := os.Stat(p); err != nil {
			return nil, errors.InvalidInput(op, err, "Video or subtitle file not found")
		}
	}
	if !req.Format.Valid() {
		return nil, errors.InvalidInput(op, nil, "Unsupported output format")
	}

	outputPath := SubtitledPath(req.ClipPath, req.Format)
	logger := logrus.WithFields(logrus.Fields{
		"clip":      req.ClipPath,
		"subtitles": req.SubtitlePath,
		"output":    outputPath,
	})

	filter := SubtitleFilter(req.SubtitlePath, e.platform)
	_, err := e.runner.Run(ctx, scripts.Command{
		Name: e.ffmpeg,
		Args: embedArgs(req.ClipPath, outputPath, filter),
	})
	if err == nil {
		if artifact, ok := artifactAt(outputPath, req.Format); ok {
			logger.Info("Subtitles embedded")
			return artifact, nil
		}
	}

	logger.WithError(err).Warn("Subtitle embedding failed, retrying with simplified paths")
	os.Remove(outputPath)
	if fbErr := e.fallback(ctx, req, outputPath); fbErr != nil {
		err = fbErr
	}

	if artifact, ok := artifactAt(outputPath, req.Format); ok {
		logger.Info("Subtitles embedded with simplified paths")
		return artifact, nil
	}

	appErr := errors.Transcode(op, err, "Error embedding subtitles")
	return nil, appErr.WithDiagnostic(scripts.OutputOf(err))
}

func (e *Embedder) fallback(ctx context.Context, req EmbedRequest, outputPath string) error {
	dir := filepath.Dir(outputPath)
	ext := "." + req.Format.Extension()
	tempVideo := fallbackVideoName + ext
	tempOutput := fallbackOutputName + ext

	defer func() {
		for _, name := range []string{tempVideo, fallbackSubsName, tempOutput} {
			os.Remove(filepath.Join(dir, name))
		}
	}()

	if err := utils.CopyFile(req.ClipPath, filepath.Join(dir, tempVideo)); err != nil {
		return err
	}
	if err := utils.CopyFile(req.SubtitlePath, filepath.Join(dir, fallbackSubsName)); err != nil {
		return err
	}

	_, err := e.runner.Run(ctx, scripts.Command{
		Name: e.ffmpeg,
		Args: embedArgs(tempVideo, tempOutput, "subtitles="+fallbackSubsName),
		Dir:  dir,
	})
	if err != nil {
		return err
	}
	return utils.CopyFile(filepath.Join(dir, tempOutput), outputPath)
}

func artifactAt(path string, format Format) (*Artifact, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return &Artifact{Path: path, Format: format, Size: info.Size()}, true
}
