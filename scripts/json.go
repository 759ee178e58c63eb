package scripts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the JSON document a helper printed, tolerating log
// lines around it. The whole output is tried first, then each line from the
// end, then the widest {...} span.
func ExtractJSON(output []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty output")
	}
	if json.Valid(trimmed) {
		return trimmed, nil
	}

	lines := bytes.Split(trimmed, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 && json.Valid(line) {
			return line, nil
		}
	}

	if match := jsonObjectPattern.Find(trimmed); match != nil && json.Valid(match) {
		return match, nil
	}
	return nil, fmt.Errorf("no JSON found in output")
}
