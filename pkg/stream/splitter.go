// Package stream turns a raw upstream response body into an ordered sequence
// of text fragments.
//
// The pipeline has three stages:
//
//	┌──────────────┐   ┌──────────┐   ┌─────────┐   ┌───────────┐
//	│ upstream body│──▶│ Splitter │──▶│ Decoder │──▶│ fragments │
//	└──────────────┘   └──────────┘   └─────────┘   └───────────┘
//
// The Splitter reassembles logical lines across arbitrary chunk boundaries,
// the Decoder extracts one text field from each line, and the Relay drives
// both against a live io.Reader.
package stream

import (
	"bytes"
	"fmt"
)

// Delimiter separates logical lines in the upstream byte stream.
type Delimiter string

const (
	// DelimiterNewline splits on a single "\n" (Ollama NDJSON).
	DelimiterNewline Delimiter = "\n"

	// DelimiterBlankLine splits on "\n\n" (event-stream style dialects).
	DelimiterBlankLine Delimiter = "\n\n"
)

// ParseDelimiter maps a config name ("newline", "blank-line") to a Delimiter.
func ParseDelimiter(name string) (Delimiter, error) {
	switch name {
	case "", "newline", "lf":
		return DelimiterNewline, nil
	case "blank-line", "blankline", "double-newline":
		return DelimiterBlankLine, nil
	default:
		return "", fmt.Errorf("unknown delimiter %q (available: newline, blank-line)", name)
	}
}

// Name returns the config name of the delimiter.
func (d Delimiter) Name() string {
	if d == DelimiterBlankLine {
		return "blank-line"
	}
	return "newline"
}

// Splitter reassembles logical lines from raw byte chunks. Bytes are never
// decoded here: a multi-byte character split across two chunks only becomes
// text after the line it belongs to is complete.
//
// A Splitter is not safe for concurrent use; each relay run owns one.
type Splitter struct {
	delim []byte

	// carry holds the unterminated tail of the previous chunk.
	carry []byte
}

// NewSplitter returns a Splitter for the given delimiter. An empty delimiter
// falls back to DelimiterNewline.
func NewSplitter(delim Delimiter) *Splitter {
	if delim == "" {
		delim = DelimiterNewline
	}
	return &Splitter{delim: []byte(delim)}
}

// Feed appends chunk to the carry-over buffer and returns every logical line
// that is now complete, in arrival order. The returned lines do not contain
// the delimiter and do not alias the Splitter's internal buffer.
func (s *Splitter) Feed(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}

	s.carry = append(s.carry, chunk...)

	var lines [][]byte
	for {
		idx := bytes.Index(s.carry, s.delim)
		if idx < 0 {
			break
		}

		line := make([]byte, idx)
		copy(line, s.carry[:idx])
		lines = append(lines, line)

		s.carry = s.carry[idx+len(s.delim):]
	}

	// Compact the tail so the backing array does not grow without bound on
	// long streams.
	if len(s.carry) == 0 {
		s.carry = s.carry[:0:0]
	} else if cap(s.carry) > 2*len(s.carry)+4096 {
		s.carry = append([]byte(nil), s.carry...)
	}

	return lines
}

// Flush returns the remaining unterminated tail, if non-empty, and resets
// the Splitter. Call it once the upstream body reports end-of-stream.
func (s *Splitter) Flush() ([]byte, bool) {
	if len(s.carry) == 0 {
		return nil, false
	}

	line := s.carry
	s.carry = nil
	return line, true
}

// pending reports how many bytes are buffered waiting for a delimiter.
func (s *Splitter) pending() int {
	return len(s.carry)
}
