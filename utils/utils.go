package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/errors"
)

func HandleError(w http.ResponseWriter, message string, statusCode int) {
	RespondWithError(w, &errors.AppError{Code: statusCode, Message: message})
}

// RespondWithError writes {"error": message} with the status derived from
// the error's kind. Classified errors were logged by the stage that raised
// them; unclassified ones are logged here and become a generic 500.
func RespondWithError(w http.ResponseWriter, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		logrus.WithError(err).Error("Unclassified error")
		appErr = errors.Internal("", err, "Internal server error")
	}
	code := appErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": appErr.Message})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
		RespondWithError(w, errors.Internal("utils.RespondWithJSON", err, "Failed to encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(data, '\n'))
}

// FormatText puts each sentence of a transcript on its own line.
func FormatText(text string) string {
	text = strings.TrimSpace(text)
	var builder strings.Builder
	for _, char := range text {
		builder.WriteRune(char)
		if char == '.' || char == '!' || char == '?' {
			builder.WriteRune('\n')
		}
	}
	return builder.String()
}

// FormatDuration renders seconds as H:MM:SS, or MM:SS under an hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds/60)%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func HumanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func HumanCount(n int64) string {
	return humanize.Comma(n)
}
