package youtube

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/nijaru/yt-clip/scripts"
)

const fallbackFormatSelector = "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// FallbackBackend shells out to yt-dlp.
type FallbackBackend struct {
	runner scripts.Runner
	binary string
	now    func() time.Time
}

func NewFallbackBackend(runner scripts.Runner, binary string) *FallbackBackend {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &FallbackBackend{runner: runner, binary: binary, now: time.Now}
}

func (b *FallbackBackend) Name() Source { return SourceFallback }

type ytDlpInfo struct {
	ID         string   `json:"id"`
	Title      *string  `json:"title"`
	Uploader   *string  `json:"uploader"`
	Duration   *float64 `json:"duration"`
	Thumbnail  string   `json:"thumbnail"`
	ViewCount  *int64   `json:"view_count"`
	UploadDate string   `json:"upload_date"`
}

func (b *FallbackBackend) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	res, err := b.runner.Run(ctx, scripts.Command{
		Name: b.binary,
		Args: []string{"--dump-single-json", "--skip-download", "--no-warnings", "--no-playlist", url},
	})
	if err != nil {
		return nil, errors.Wrap(err, "fallback backend: yt-dlp metadata")
	}

	doc, err := scripts.ExtractJSON(res.Stdout)
	if err != nil {
		return nil, errors.Wrap(err, "fallback backend: yt-dlp output")
	}
	md, err := parseYtDlpInfo(doc)
	if err != nil {
		return nil, err
	}
	md.URL = url
	md.handle = url
	return md, nil
}

func parseYtDlpInfo(data []byte) (*Metadata, error) {
	var info ytDlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(err, "fallback backend: decode metadata")
	}

	md := &Metadata{
		ID:           info.ID,
		Title:        "Unknown Title",
		Author:       "Unknown",
		ThumbnailURL: info.Thumbnail,
		Source:       SourceFallback,
	}
	if info.Title != nil {
		md.Title = *info.Title
	}
	if info.Uploader != nil {
		md.Author = *info.Uploader
	}
	if info.Duration != nil && *info.Duration > 0 {
		md.LengthSeconds = int(*info.Duration)
	}
	if info.ViewCount != nil && *info.ViewCount > 0 {
		md.ViewCount = *info.ViewCount
	}
	if info.UploadDate != "" {
		if t, err := time.Parse("20060102", info.UploadDate); err == nil {
			md.PublishDate = &t
		}
	}
	return md, nil
}

func (b *FallbackBackend) Download(ctx context.Context, md *Metadata, dir string) (string, error) {
	url, _ := md.handle.(string)
	if url == "" {
		url = md.URL
	}

	path := filepath.Join(dir, TimestampedName(md.Title, b.now(), "mp4"))
	_, err := b.runner.Run(ctx, scripts.Command{
		Name: b.binary,
		Args: []string{
			"-f", fallbackFormatSelector,
			"--merge-output-format", "mp4",
			"--no-playlist",
			"--no-warnings",
			"--quiet",
			"-o", path,
			url,
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "fallback backend: yt-dlp download")
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrap(err, "fallback backend: downloaded file missing")
	}
	return path, nil
}
