package media

import (
	"fmt"
	"math"
	"strings"
)

type Format string

const (
	FormatMP4  Format = "MP4"
	FormatWebM Format = "WebM"
	FormatMKV  Format = "MKV"
)

type formatSpec struct {
	container  string
	videoCodec string
	audioCodec string
}

var formatSpecs = map[Format]formatSpec{
	FormatMP4:  {container: "mp4", videoCodec: "libx264", audioCodec: "aac"},
	FormatWebM: {container: "webm", videoCodec: "libvpx-vp9", audioCodec: "libopus"},
	FormatMKV:  {container: "matroska", videoCodec: "libx264", audioCodec: "aac"},
}

// ParseFormat accepts the format name in any case ("mp4", "WEBM", "MKV").
func ParseFormat(s string) (Format, error) {
	for f := range formatSpecs {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Extension is the lower-cased format name, used as the file extension.
func (f Format) Extension() string {
	return strings.ToLower(string(f))
}

func (f Format) Valid() bool {
	_, ok := formatSpecs[f]
	return ok
}

type Quality string

const (
	QualityLow    Quality = "Low"
	QualityMedium Quality = "Medium"
	QualityHigh   Quality = "High"
)

type qualitySpec struct {
	videoBitrate string
	audioBitrate string
	height       int
}

var qualitySpecs = map[Quality]qualitySpec{
	QualityHigh:   {videoBitrate: "2M", audioBitrate: "192k", height: 720},
	QualityMedium: {videoBitrate: "1M", audioBitrate: "128k", height: 480},
	QualityLow:    {videoBitrate: "500k", audioBitrate: "96k", height: 360},
}

func ParseQuality(s string) (Quality, error) {
	for q := range qualitySpecs {
		if strings.EqualFold(string(q), strings.TrimSpace(s)) {
			return q, nil
		}
	}
	return "", fmt.Errorf("unsupported quality %q", s)
}

func (q Quality) Valid() bool {
	_, ok := qualitySpecs[q]
	return ok
}

// Height is the target frame height for q.
func (q Quality) Height() int {
	return qualitySpecs[q].height
}

// ScaleFilter scales to the target height keeping aspect ratio, then forces
// both dimensions even. libx264 rejects odd sizes, so both stages are needed.
func ScaleFilter(height int) string {
	return fmt.Sprintf("scale=-2:%d,scale=trunc(iw/2)*2:trunc(ih/2)*2", height)
}

// EvenDimensions computes the frame size ScaleFilter(target) produces for a
// width x height source.
func EvenDimensions(width, height, target int) (int, int) {
	if width <= 0 || height <= 0 || target <= 0 {
		return 0, 0
	}
	// scale=-2:H keeps the aspect ratio and rounds the width to a multiple of 2
	w := int(math.Round(float64(width)*float64(target)/float64(height)/2)) * 2
	h := target
	// trunc(iw/2)*2:trunc(ih/2)*2
	w = w / 2 * 2
	h = h / 2 * 2
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w, h
}

// Timecode renders whole seconds as HH:MM:SS for ffmpeg -ss/-to.
func Timecode(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}
