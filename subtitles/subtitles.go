// Package subtitles models timed transcript segments and their SRT form.
package subtitles

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Segment is one timed line of transcript. Times are seconds from clip start.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Track is an ordered list of segments. Entry numbering starts at 1 and is
// assigned when the track is serialized.
type Track []Segment

// Text joins the trimmed segment texts with single spaces.
func (t Track) Text() string {
	parts := make([]string, 0, len(t))
	for _, s := range t {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Hours are not wrapped at
// 24 and milliseconds are truncated.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	// the epsilon keeps values like 1.001 from flooring to 1.000
	totalMillis := int64(seconds*1000 + 1e-6)
	hours := totalMillis / 3_600_000
	minutes := (totalMillis / 60_000) % 60
	secs := (totalMillis / 1000) % 60
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp is the inverse of FormatTimestamp. A '.' separator is
// accepted for the milliseconds as well.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(strings.Replace(ts, ".", ",", 1))
	clock, frac, _ := strings.Cut(ts, ",")

	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}

	var total float64
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		total += float64(n) * []float64{3600, 60, 1}[i]
	}

	if frac != "" {
		ms, err := strconv.Atoi(frac)
		if err != nil || ms < 0 || len(frac) > 3 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		for l := len(frac); l < 3; l++ {
			ms *= 10
		}
		total += float64(ms) / 1000
	}
	return total, nil
}
