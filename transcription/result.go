package transcription

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nijaru/yt-clip/subtitles"
)

// ResultKind tags the shape a speech model returned.
type ResultKind int

const (
	// KindChunked carries chunks with [start, end] timestamps already.
	KindChunked ResultKind = iota + 1
	// KindTimestamped carries timestamped_text items with start/end fields.
	KindTimestamped
	// KindFlatText has only a text field.
	KindFlatText
	// KindPlainString is a bare JSON string.
	KindPlainString
)

func (k ResultKind) String() string {
	switch k {
	case KindChunked:
		return "chunked"
	case KindTimestamped:
		return "timestamped"
	case KindFlatText:
		return "flat_text"
	case KindPlainString:
		return "plain_string"
	default:
		return "unknown"
	}
}

// RawResult is a decoded model response. Entries holds the raw chunk or
// timestamped item list for the timestamped kinds; Text holds the transcript
// for the text-only kinds.
type RawResult struct {
	Kind    ResultKind
	Entries []json.RawMessage
	Text    string
}

type timestampedItem struct {
	Text  string   `json:"text"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

// DecodeResult classifies raw helper output. It is the only place that
// inspects keys of the model's response.
func DecodeResult(data []byte) (RawResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return RawResult{}, fmt.Errorf("empty model output")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return RawResult{}, fmt.Errorf("decode string result: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return RawResult{}, fmt.Errorf("model result has no transcript")
		}
		return RawResult{Kind: KindPlainString, Text: s}, nil
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return RawResult{}, fmt.Errorf("decode chunk list: %w", err)
		}
		return RawResult{Kind: KindChunked, Entries: entries}, nil
	}

	var doc struct {
		Chunks          []json.RawMessage `json:"chunks"`
		TimestampedText []json.RawMessage `json:"timestamped_text"`
		Text            *string           `json:"text"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return RawResult{}, fmt.Errorf("decode model result: %w", err)
	}

	switch {
	case len(doc.Chunks) > 0:
		return RawResult{Kind: KindChunked, Entries: doc.Chunks}, nil
	case len(doc.TimestampedText) > 0:
		return RawResult{Kind: KindTimestamped, Entries: doc.TimestampedText}, nil
	case doc.Text != nil && strings.TrimSpace(*doc.Text) != "":
		return RawResult{Kind: KindFlatText, Text: *doc.Text}, nil
	default:
		return RawResult{}, fmt.Errorf("model result has no transcript")
	}
}

// Normalize converts a RawResult to subtitle segments.
func Normalize(r RawResult) subtitles.Track {
	switch r.Kind {
	case KindChunked:
		track := make(subtitles.Track, 0, len(r.Entries))
		for _, e := range r.Entries {
			track = append(track, subtitles.NormalizeEntry(e))
		}
		return track
	case KindTimestamped:
		track := make(subtitles.Track, 0, len(r.Entries))
		for _, e := range r.Entries {
			var item timestampedItem
			if err := json.Unmarshal(e, &item); err != nil {
				track = append(track, subtitles.NormalizeEntry(e))
				continue
			}
			seg := subtitles.Segment{Text: item.Text}
			if item.Start != nil {
				seg.Start = *item.Start
			}
			if item.End != nil {
				seg.End = *item.End
			}
			if seg.End < seg.Start {
				seg.End = seg.Start
			}
			track = append(track, seg)
		}
		return track
	case KindFlatText, KindPlainString:
		if strings.TrimSpace(r.Text) == "" {
			return nil
		}
		return subtitles.Track{{Start: 0, End: subtitles.FlatTextSpan, Text: r.Text}}
	default:
		return nil
	}
}
