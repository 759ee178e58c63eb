package subtitles

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseTranscript accepts a transcript in any of the shapes the
// transcription helpers emit: an object with "chunks" or "segments", or a
// bare list. Each entry may be {timestamp:[s,e],text}, {start,end,text}, or
// anything else, which becomes a zero-length segment of its JSON text.
func ParseTranscript(data []byte) (Track, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty transcript")
	}

	var entries []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("invalid transcript list: %w", err)
		}
	case '{':
		var wrapper struct {
			Chunks   []json.RawMessage `json:"chunks"`
			Segments []json.RawMessage `json:"segments"`
			Text     *string           `json:"text"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("invalid transcript: %w", err)
		}
		switch {
		case wrapper.Chunks != nil:
			entries = wrapper.Chunks
		case wrapper.Segments != nil:
			entries = wrapper.Segments
		case wrapper.Text != nil:
			return Track{{Start: 0, End: FlatTextSpan, Text: strings.TrimSpace(*wrapper.Text)}}, nil
		default:
			return nil, fmt.Errorf("transcript has no chunks or segments")
		}
	default:
		return nil, fmt.Errorf("unsupported transcript document")
	}

	track := make(Track, 0, len(entries))
	for _, raw := range entries {
		track = append(track, NormalizeEntry(raw))
	}
	return track, nil
}

// FlatTextSpan is the duration assigned to a transcript that carries no
// timestamps at all.
const FlatTextSpan = 30.0

type timestampEntry struct {
	Timestamp []*float64 `json:"timestamp"`
	Text      *string    `json:"text"`
}

type startEndEntry struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Text  *string  `json:"text"`
}

// NormalizeEntry converts one transcript entry to a Segment.
func NormalizeEntry(raw json.RawMessage) Segment {
	var ts timestampEntry
	if err := json.Unmarshal(raw, &ts); err == nil && ts.Text != nil && len(ts.Timestamp) == 2 {
		start, end := 0.0, 0.0
		if ts.Timestamp[0] != nil {
			start = *ts.Timestamp[0]
		}
		if ts.Timestamp[1] != nil {
			end = *ts.Timestamp[1]
		} else {
			// open-ended final chunk
			end = start
		}
		return clampSegment(Segment{Start: start, End: end, Text: *ts.Text})
	}

	var se startEndEntry
	if err := json.Unmarshal(raw, &se); err == nil && se.Text != nil && se.Start != nil && se.End != nil {
		return clampSegment(Segment{Start: *se.Start, End: *se.End, Text: *se.Text})
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Segment{Text: s}
	}
	return Segment{Text: string(bytes.TrimSpace(raw))}
}

func clampSegment(s Segment) Segment {
	if s.Start < 0 {
		s.Start = 0
	}
	if s.End < s.Start {
		s.End = s.Start
	}
	return s
}

// ParseSRT reads SRT text back into a track. Malformed blocks are skipped.
func ParseSRT(data []byte) (Track, error) {
	var track Track
	scanner := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))

	var block []string
	flush := func() {
		if seg, ok := parseBlock(block); ok {
			track = append(track, seg)
		}
		block = block[:0]
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return track, nil
}

func parseBlock(lines []string) (Segment, bool) {
	if len(lines) < 2 {
		return Segment{}, false
	}
	timing := lines[1]
	if !strings.Contains(timing, "-->") {
		// index line missing
		timing = lines[0]
		lines = append([]string{""}, lines...)
	}
	startStr, endStr, ok := strings.Cut(timing, "-->")
	if !ok {
		return Segment{}, false
	}
	start, err := ParseTimestamp(startStr)
	if err != nil {
		return Segment{}, false
	}
	end, err := ParseTimestamp(endStr)
	if err != nil {
		return Segment{}, false
	}
	return Segment{Start: start, End: end, Text: strings.Join(lines[2:], "\n")}, true
}
