package sse

import (
	"bytes"
	"strings"
)

// Parse reads one event-stream unit. It reports false when the unit carries
// no recognised field, which is how a bare JSON record (no framing) is told
// apart from a framed one.
func Parse(unit []byte) (Event, bool) {
	var (
		ev    Event
		found bool
		data  []string
	)

	for line := range bytes.Lines(unit) {
		raw := strings.TrimRight(string(line), "\r\n")
		if raw == "" || strings.HasPrefix(raw, ":") {
			continue
		}

		field, value, ok := strings.Cut(raw, ":")
		if ok {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			data = append(data, value)
			found = true
		case "event":
			ev.Type = value
			found = true
		case "id":
			ev.ID = value
			found = true
		default:
			// retry and unknown fields are ignored
		}
	}

	ev.Data = strings.Join(data, "\n")
	return ev, found
}
