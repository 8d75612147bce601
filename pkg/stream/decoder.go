package stream

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/papercomputeco/lmgate/pkg/sse"
)

// DefaultField is the record field Ollama uses for generated text.
const DefaultField = "response"

// Decoder extracts a single text field from a logical line holding one JSON
// record. Records are parsed schema-free so unknown fields never cause a
// rejection.
type Decoder struct {
	field string

	// framed unwraps event-stream "data:" units before parsing.
	framed bool
}

// NewDecoder returns a Decoder that extracts field. An empty field falls
// back to DefaultField.
func NewDecoder(field string) *Decoder {
	if field == "" {
		field = DefaultField
	}
	return &Decoder{field: field}
}

// Framed returns a copy of d that unwraps event-stream framing. A unit with
// "data:" fields is decoded from its joined data; a unit without any framing
// is decoded as-is.
func (d *Decoder) Framed() *Decoder {
	return &Decoder{field: d.field, framed: true}
}

// fieldName returns the name of the extracted field.
func (d *Decoder) fieldName() string {
	return d.field
}

// Decode parses line and returns the designated field's value verbatim.
// It reports false for blank lines, bytes that are not valid UTF-8, lines
// that are not a JSON object, records without the field, and records whose
// field is not a string. None of these are errors.
func (d *Decoder) Decode(line []byte) (string, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", false
	}

	// encoding/json silently replaces invalid UTF-8 with U+FFFD, which would
	// hide a decode fault; skip the whole unit instead.
	if !utf8.Valid(line) {
		return "", false
	}

	if d.framed {
		if ev, ok := sse.Parse(line); ok {
			line = bytes.TrimSpace([]byte(ev.Data))
		}
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(line, &record); err != nil {
		return "", false
	}

	raw, ok := record[d.field]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var fragment string
	if err := json.Unmarshal(raw, &fragment); err != nil {
		return "", false
	}

	return fragment, true
}
