package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/nijaru/yt-clip/scripts"
)

type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// FFprobe returns a ProbeFunc that runs the ffprobe binary at ffprobePath
// through runner.
func FFprobe(runner scripts.Runner, ffprobePath string) ProbeFunc {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return func(ctx context.Context, path string) (*ProbeResult, error) {
		res, err := runner.Run(ctx, scripts.Command{
			Name: ffprobePath,
			Args: []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "ffprobe %s", path)
		}
		return ParseProbe(res.Stdout)
	}
}

func ParseProbe(data []byte) (*ProbeResult, error) {
	var res ProbeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &res, nil
}

func (r *ProbeResult) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

func (r *ProbeResult) VideoStream() (ProbeStream, bool) {
	for _, s := range r.Streams {
		if s.CodecType == "video" {
			return s, true
		}
	}
	return ProbeStream{}, false
}

func (r *ProbeResult) HasAudio() bool {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}
