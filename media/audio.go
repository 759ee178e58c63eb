package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/scripts"
)

// AudioExtractor produces the 16 kHz mono PCM track the speech model expects.
type AudioExtractor struct {
	runner scripts.Runner
	ffmpeg string
}

func NewAudioExtractor(runner scripts.Runner, ffmpegPath string) *AudioExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &AudioExtractor{runner: runner, ffmpeg: ffmpegPath}
}

func AudioArgs(videoPath, audioPath string) []string {
	return ffmpeg.Input(videoPath).
		Output(audioPath, ffmpeg.KwArgs{
			"vn":     "",
			"acodec": "pcm_s16le",
			"ar":     "16000",
			"ac":     "1",
		}).
		OverWriteOutput().
		GetArgs()
}

// ExtractAudio writes <outDir>/<video base>.wav and returns its path.
func (e *AudioExtractor) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	const op = "AudioExtractor.ExtractAudio"

	if _, err := os.Stat(videoPath); err != nil {
		return "", errors.InvalidInput(op, err, "Video file not found")
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	audioPath := filepath.Join(outDir, base+".wav")

	_, err := e.runner.Run(ctx, scripts.Command{Name: e.ffmpeg, Args: AudioArgs(videoPath, audioPath)})
	if err != nil {
		return "", errors.Transcode(op, err, "Error extracting audio").
			WithDiagnostic(scripts.OutputOf(err))
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", errors.Transcode(op, err, "Error extracting audio: output file was not created")
	}

	logrus.WithFields(logrus.Fields{
		"video": videoPath,
		"audio": audioPath,
	}).Debug("Audio extracted")
	return audioPath, nil
}
