package youtube

import (
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11}).*`)

// NormalizeURL rewrites youtu.be links and youtube.com links carrying an
// 11 character video id to https://www.youtube.com/watch?v=<id>. Anything
// else is returned unchanged.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)

	if idx := strings.Index(raw, "youtu.be/"); idx >= 0 {
		id := raw[idx+len("youtu.be/"):]
		if cut := strings.IndexAny(id, "?&#/"); cut >= 0 {
			id = id[:cut]
		}
		if id != "" {
			return WatchURL(id)
		}
		return raw
	}

	if strings.Contains(raw, "youtube.com") {
		if m := videoIDPattern.FindStringSubmatch(raw); m != nil {
			return WatchURL(m[1])
		}
	}
	return raw
}

// VideoID extracts the id from a normalized or raw URL.
func VideoID(raw string) (string, bool) {
	normalized := NormalizeURL(raw)
	const prefix = "https://www.youtube.com/watch?v="
	if !strings.HasPrefix(normalized, prefix) {
		return "", false
	}
	return strings.TrimPrefix(normalized, prefix), true
}

func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
