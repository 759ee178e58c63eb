package media

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/nijaru/yt-clip/errors"
	"github.com/nijaru/yt-clip/scripts"
)

// ClipRequest cuts [Start, End] (HH:MM:SS) out of SourcePath.
type ClipRequest struct {
	SourcePath string
	OutputPath string
	Start      string
	End        string
	Format     Format
	Quality    Quality
}

// Artifact is a produced media file. Width, Height and Duration are filled
// when a prober is configured and succeeds.
type Artifact struct {
	Path     string  `json:"path"`
	Format   Format  `json:"format"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

// ProbeFunc inspects a finished file.
type ProbeFunc func(ctx context.Context, path string) (*ProbeResult, error)

type Clipper struct {
	runner scripts.Runner
	ffmpeg string
	probe  ProbeFunc
}

type ClipperOption func(*Clipper)

// WithProbe enables post-clip inspection of the output.
func WithProbe(probe ProbeFunc) ClipperOption {
	return func(c *Clipper) { c.probe = probe }
}

func NewClipper(runner scripts.Runner, ffmpegPath string, opts ...ClipperOption) *Clipper {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	c := &Clipper{runner: runner, ffmpeg: ffmpegPath}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClipArgs builds the ffmpeg argument list for req.
func ClipArgs(req ClipRequest) []string {
	format := formatSpecs[req.Format]
	quality := qualitySpecs[req.Quality]

	return ffmpeg.Input(req.SourcePath).
		Output(req.OutputPath, ffmpeg.KwArgs{
			"ss":       req.Start,
			"to":       req.End,
			"vf":       ScaleFilter(quality.height),
			"b:v":      quality.videoBitrate,
			"b:a":      quality.audioBitrate,
			"c:v":      format.videoCodec,
			"c:a":      format.audioCodec,
			"f":        format.container,
			"movflags": "+faststart",
		}).
		OverWriteOutput().
		GetArgs()
}

// Clip runs one ffmpeg invocation. It succeeds only when ffmpeg exits zero
// and the output file exists.
func (c *Clipper) Clip(ctx context.Context, req ClipRequest) (*Artifact, error) {
	const op = "Clipper.Clip"

	if _, err := os.Stat(req.SourcePath); err != nil {
		return nil, errors.InvalidInput(op, err, "Video file not found")
	}
	if !req.Format.Valid() {
		return nil, errors.InvalidInput(op, nil, "Unsupported output format")
	}
	if !req.Quality.Valid() {
		return nil, errors.InvalidInput(op, nil, "Unsupported quality")
	}

	logger := logrus.WithFields(logrus.Fields{
		"source":  req.SourcePath,
		"output":  req.OutputPath,
		"start":   req.Start,
		"end":     req.End,
		"format":  req.Format,
		"quality": req.Quality,
	})
	logger.Info("Creating clip")

	start := time.Now()
	_, err := c.runner.Run(ctx, scripts.Command{Name: c.ffmpeg, Args: ClipArgs(req)})
	if err != nil {
		return nil, errors.Transcode(op, err, "Error creating clip").
			WithDiagnostic(scripts.OutputOf(err))
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return nil, errors.Transcode(op, err, "Error creating clip: output file was not created")
	}

	artifact := &Artifact{Path: req.OutputPath, Format: req.Format, Size: info.Size()}
	c.fillProbe(ctx, artifact)

	logger.WithFields(logrus.Fields{
		"size":     artifact.Size,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Clip created")
	return artifact, nil
}

func (c *Clipper) fillProbe(ctx context.Context, a *Artifact) {
	if c.probe == nil {
		return
	}
	res, err := c.probe(ctx, a.Path)
	if err != nil {
		logrus.WithError(err).WithField("path", a.Path).Debug("Probe failed")
		return
	}
	a.Duration = res.DurationSeconds()
	if v, ok := res.VideoStream(); ok {
		a.Width, a.Height = v.Width, v.Height
	}
}
