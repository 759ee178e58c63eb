package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nijaru/yt-clip/errors"
)

// Encode writes track in SRT form.
func Encode(w io.Writer, track Track) error {
	bw := bufio.NewWriter(w)
	for i, seg := range track {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1,
			FormatTimestamp(seg.Start),
			FormatTimestamp(seg.End),
			strings.TrimSpace(seg.Text),
		); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Write stores track as <dir>/<base>.srt and returns the path. The file is
// written under a temporary name and renamed, so a failed write never leaves
// a partial file at the returned path.
func Write(track Track, dir, base string) (string, error) {
	const op = "subtitles.Write"

	path := filepath.Join(dir, base+".srt")

	tmp, err := os.CreateTemp(dir, "."+base+"-*.srt.tmp")
	if err != nil {
		return "", errors.Write(op, err, "Error creating subtitle file")
	}
	tmpPath := tmp.Name()

	if err := Encode(tmp, track); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", errors.Write(op, err, "Error writing subtitle file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errors.Write(op, err, "Error writing subtitle file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", errors.Write(op, err, "Error writing subtitle file")
	}
	return path, nil
}
