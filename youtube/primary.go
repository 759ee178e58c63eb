package youtube

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	yt "github.com/kkdai/youtube/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PrimaryDownloadTimeout bounds a primary backend download end to end.
const PrimaryDownloadTimeout = 180 * time.Second

// videoClient is the subset of *youtube.Client the primary backend uses.
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*yt.Video, error)
	GetStreamContext(ctx context.Context, video *yt.Video, format *yt.Format) (io.ReadCloser, int64, error)
}

// PrimaryBackend talks to YouTube directly through a native Go client.
type PrimaryBackend struct {
	client  videoClient
	timeout time.Duration
}

// NewPrimaryBackend returns a backend whose downloads are bounded by
// PrimaryDownloadTimeout.
func NewPrimaryBackend() *PrimaryBackend {
	return newPrimaryBackend(&yt.Client{}, PrimaryDownloadTimeout)
}

func newPrimaryBackend(client videoClient, timeout time.Duration) *PrimaryBackend {
	if timeout <= 0 {
		timeout = PrimaryDownloadTimeout
	}
	return &PrimaryBackend{client: client, timeout: timeout}
}

func (b *PrimaryBackend) Name() Source { return SourcePrimary }

func (b *PrimaryBackend) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	video, err := b.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "primary backend: get video")
	}

	md := &Metadata{
		URL:           url,
		ID:            video.ID,
		Title:         video.Title,
		Author:        video.Author,
		LengthSeconds: int(video.Duration / time.Second),
		ViewCount:     int64(video.Views),
		ThumbnailURL:  bestThumbnail(video.Thumbnails),
		Source:        SourcePrimary,
		handle:        video,
	}
	if !video.PublishDate.IsZero() {
		published := video.PublishDate
		md.PublishDate = &published
	}
	return md, nil
}

// Download streams the selected format into dir. The whole transfer is
// bounded by the backend timeout; a partial file is removed on failure.
func (b *PrimaryBackend) Download(ctx context.Context, md *Metadata, dir string) (string, error) {
	video, ok := md.handle.(*yt.Video)
	if !ok || video == nil {
		return "", errors.New("primary backend: metadata has no video handle")
	}

	format := SelectFormat(video.Formats)
	if format == nil {
		return "", errors.New("primary backend: no downloadable formats")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	stream, size, err := b.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", errors.Wrap(err, "primary backend: open stream")
	}
	defer stream.Close()

	path := filepath.Join(dir, SanitizeTitle(video.Title)+"."+extensionFor(format.MimeType))
	out, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "primary backend: create file")
	}

	logrus.WithFields(logrus.Fields{
		"itag":    format.ItagNo,
		"quality": format.QualityLabel,
		"size":    size,
		"path":    path,
	}).Debug("Downloading stream")

	if _, err := io.Copy(out, stream); err != nil {
		out.Close()
		os.Remove(path)
		return "", errors.Wrap(err, "primary backend: download")
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, "primary backend: close file")
	}
	return path, nil
}

// SelectFormat prefers the highest resolution progressive stream (video and
// audio), then the highest resolution adaptive video/mp4 stream, then the
// first format listed.
func SelectFormat(formats yt.FormatList) *yt.Format {
	if len(formats) == 0 {
		return nil
	}

	var progressive, adaptive []*yt.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		if f.AudioChannels > 0 {
			progressive = append(progressive, f)
		} else if strings.HasPrefix(f.MimeType, "video/mp4") {
			adaptive = append(adaptive, f)
		}
	}

	for _, group := range [][]*yt.Format{progressive, adaptive} {
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return group[i].Height > group[j].Height })
		return group[0]
	}
	return &formats[0]
}

func extensionFor(mimeType string) string {
	mime, _, _ := strings.Cut(mimeType, ";")
	_, sub, ok := strings.Cut(strings.TrimSpace(mime), "/")
	if !ok || sub == "" {
		return "mp4"
	}
	return sub
}

func bestThumbnail(thumbs yt.Thumbnails) string {
	var best string
	var bestWidth uint
	for _, t := range thumbs {
		if best == "" || t.Width > bestWidth {
			best, bestWidth = t.URL, t.Width
		}
	}
	return best
}
