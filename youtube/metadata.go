package youtube

import (
	"context"
	"time"
)

type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Metadata describes a video. It remembers the backend that produced it so
// the download goes through the same backend.
type Metadata struct {
	URL           string     `json:"url"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	LengthSeconds int        `json:"length_seconds"`
	ThumbnailURL  string     `json:"thumbnail_url"`
	ViewCount     int64      `json:"view_count"`
	PublishDate   *time.Time `json:"publish_date,omitempty"`
	Source        Source     `json:"source"`

	backend Backend
	handle  any
}

// Backend fetches metadata and downloads the full video for it.
type Backend interface {
	Name() Source
	FetchMetadata(ctx context.Context, url string) (*Metadata, error)
	Download(ctx context.Context, md *Metadata, dir string) (string, error)
}
