package youtube

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_-]`)

const maxTitleLength = 50

// SanitizeTitle replaces every character that is not a letter, digit, '_'
// or '-' with '_', truncates to 50 characters and trims underscores from the
// ends. Letters and digits of any script are kept.
func SanitizeTitle(title string) string {
	safe := []rune(nonWordPattern.ReplaceAllString(title, "_"))
	if len(safe) > maxTitleLength {
		safe = safe[:maxTitleLength]
	}
	title = strings.Trim(string(safe), "_")
	if title == "" {
		return "video"
	}
	return title
}

// TimestampedName returns <sanitized title>_<unix seconds>.<ext>.
func TimestampedName(title string, now time.Time, ext string) string {
	return fmt.Sprintf("%s_%d.%s", SanitizeTitle(title), now.Unix(), ext)
}
