package youtube

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/errors"
)

// Fetcher tries the primary backend and falls back to the secondary one.
type Fetcher struct {
	primary  Backend
	fallback Backend
}

func NewFetcher(primary, fallback Backend) *Fetcher {
	return &Fetcher{primary: primary, fallback: fallback}
}

// FetchMetadata normalizes url, tries each backend in order and records the
// one that answered on the returned metadata.
func (f *Fetcher) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	const op = "Fetcher.FetchMetadata"

	url = NormalizeURL(url)
	logger := logrus.WithField("url", url)

	var lastErr error
	for _, b := range []Backend{f.primary, f.fallback} {
		if b == nil {
			continue
		}
		md, err := b.FetchMetadata(ctx, url)
		if err == nil {
			md.backend = b
			md.Source = b.Name()
			if md.URL == "" {
				md.URL = url
			}
			if md.ID == "" {
				md.ID, _ = VideoID(url)
			}
			clampMetadata(md)
			logger.WithFields(logrus.Fields{
				"source": md.Source,
				"title":  md.Title,
				"length": md.LengthSeconds,
			}).Info("Fetched video metadata")
			return md, nil
		}
		lastErr = err
		logger.WithError(err).WithField("backend", b.Name()).Warn("Metadata backend failed")
		if ctx.Err() != nil {
			break
		}
	}

	return nil, errors.Upstream(op, lastErr, "could not fetch video information")
}

// Download routes to the backend that served md.
func (f *Fetcher) Download(ctx context.Context, md *Metadata, dir string) (string, error) {
	const op = "Fetcher.Download"

	if md == nil || md.backend == nil {
		return "", errors.Internal(op, nil, "metadata was not produced by this fetcher")
	}

	logger := logrus.WithFields(logrus.Fields{
		"url":    md.URL,
		"source": md.Source,
	})
	logger.Info("Downloading video")

	path, err := md.backend.Download(ctx, md, dir)
	if err != nil {
		logger.WithError(err).Error("Download failed")
		return "", errors.Upstream(op, err, "Error downloading video")
	}
	logger.WithField("path", path).Info("Video downloaded")
	return path, nil
}

func clampMetadata(md *Metadata) {
	if md.LengthSeconds < 0 {
		md.LengthSeconds = 0
	}
	if md.ViewCount < 0 {
		md.ViewCount = 0
	}
}
