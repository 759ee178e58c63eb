package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nijaru/yt-clip/errors"
)

var youtubeURLPattern = regexp.MustCompile(`^https?://(www\.)?youtube\.com/watch\?v=.+|^https?://youtu\.be/.+`)

// ValidateURL checks that rawURL looks like a YouTube watch or short link.
// Whether the video exists is decided by the fetcher.
func ValidateURL(rawURL string) error {
	const op = "validation.ValidateURL"

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return errors.InvalidInput(op, nil, "URL is required")
	}

	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return errors.InvalidInput(op, err, "Invalid URL format")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.InvalidInput(op, nil, "URL must start with http or https")
	}
	if parsedURL.Host == "" {
		return errors.InvalidInput(op, nil, "URL must have a host")
	}

	if !youtubeURLPattern.MatchString(rawURL) {
		return errors.InvalidInput(op, nil, "Please enter a valid YouTube URL")
	}
	if strings.Contains(parsedURL.Host, "youtube.com") && parsedURL.Query().Get("v") == "" {
		return errors.InvalidInput(op, nil, "YouTube URL must contain a valid video ID")
	}
	return nil
}

// ValidateClipRange enforces 0 <= start < end <= duration, in whole seconds.
func ValidateClipRange(start, end, duration int) error {
	const op = "validation.ValidateClipRange"

	switch {
	case start < 0:
		return errors.InvalidInput(op, nil, "Start time cannot be negative")
	case end <= start:
		return errors.InvalidInput(op, nil, "End time must be after start time")
	case end > duration:
		return errors.InvalidInput(op, nil, "End time exceeds video length")
	}
	return nil
}
