package relay

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DataPrefix marks the upstream lines that carry a JSON payload.
const DataPrefix = "data: "

// SplitLines appends chunk to buf and cuts every complete line off the front.
// A trailing '\r' is stripped from each line. Whatever follows the last '\n'
// is returned untouched as rest and must be passed back with the next chunk.
func SplitLines(buf, chunk []byte) (lines []string, rest []byte) {
	buf = append(buf, chunk...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := buf[:i]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))
		buf = buf[i+1:]
	}
	// Copy so the caller's next append never aliases consumed memory.
	rest = append([]byte(nil), buf...)
	return lines, rest
}

// ParseDataLine extracts the "content" string of a data line. Anything that is
// not a data line, not JSON, or has no string content yields ok=false.
func ParseDataLine(line string) (content string, ok bool) {
	payload, found := strings.CutPrefix(line, DataPrefix)
	if !found {
		return "", false
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return "", false
	}
	raw, present := body["content"]
	if !present || string(raw) == "null" {
		return "", false
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", false
	}
	return content, true
}
