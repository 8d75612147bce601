// Package sse parses event-stream framed units for the blank-line upstream
// dialect. Each unit handed to Parse is one event: the lines between two
// blank lines of the upstream body.
//
// Only the reading side is implemented; the gateway never emits events.
//
// See https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event is a single parsed event-stream unit.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data is every "data:" line of the unit joined with "\n".
	Data string

	// ID is the last "id:" field, if present.
	ID string
}
