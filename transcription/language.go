package transcription

import (
	"strings"

	"github.com/nijaru/yt-clip/errors"
)

type Language string

const (
	English Language = "en"
	Spanish Language = "es"
)

// ParseLanguage accepts "en" and "es" (any case). Other languages are
// rejected as invalid input.
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case English:
		return English, nil
	case Spanish:
		return Spanish, nil
	}
	return "", errors.InvalidInput("transcription.ParseLanguage", nil, "Unsupported subtitle language: use en or es")
}

// explicit reports whether the model should be told the language instead of
// detecting it.
func (l Language) explicit() bool {
	return l == Spanish
}
