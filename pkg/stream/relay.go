package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

const defaultChunkSize = 32 * 1024

// ErrSink marks errors returned by Stream because the sink rejected a write
// or flush, as opposed to the upstream body failing.
var ErrSink = errors.New("sink failed")

// Relay drives a Splitter and a Decoder against a live upstream body.
// A Relay holds configuration only; every call builds fresh per-request
// state, so one Relay can serve any number of concurrent requests.
type Relay struct {
	delim     Delimiter
	field     string
	chunkSize int
}

// Option configures a Relay created with NewRelay.
type Option func(*Relay)

// WithDelimiter sets the logical line delimiter. Defaults to DelimiterNewline.
func WithDelimiter(d Delimiter) Option {
	return func(r *Relay) {
		r.delim = d
	}
}

// WithField sets the record field that carries generated text.
// Defaults to DefaultField.
func WithField(field string) Option {
	return func(r *Relay) {
		r.field = field
	}
}

// WithChunkSize sets the size of the read buffer used against the body.
func WithChunkSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// NewRelay creates a new Relay.
func NewRelay(opts ...Option) *Relay {
	r := &Relay{
		delim:     DelimiterNewline,
		field:     DefaultField,
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Delimiter returns the configured line delimiter.
func (r *Relay) Delimiter() Delimiter {
	return r.delim
}

// Stats summarizes one relay run.
type Stats struct {
	// Fragments is the number of fragments decoded.
	Fragments int

	// Bytes is the number of fragment bytes delivered to the sink.
	Bytes int
}

// Fragments returns a lazy sequence of fragments read from body.
//
// The sequence pulls from body only while the consumer keeps iterating: it
// blocks in body.Read until the next chunk arrives, yields every fragment
// the chunk completes, and then reads again. Breaking out of the range loop
// stops all further reads. End-of-stream flushes the unterminated tail as a
// final line. A read failure is yielded once as a non-nil error and ends
// the sequence. Malformed records are skipped silently.
//
// The body is not closed; its owner is responsible for that.
func (r *Relay) Fragments(ctx context.Context, body io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		splitter := NewSplitter(r.delim)
		decoder := NewDecoder(r.field)
		if r.delim == DelimiterBlankLine {
			decoder = decoder.Framed()
		}
		buf := make([]byte, r.chunkSize)

		emit := func(lines [][]byte) bool {
			for _, line := range lines {
				fragment, ok := decoder.Decode(line)
				if !ok {
					continue
				}
				if !yield(fragment, nil) {
					return false
				}
			}
			return true
		}

		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			n, err := body.Read(buf)
			if n > 0 {
				if !emit(splitter.Feed(buf[:n])) {
					return
				}
			}

			if errors.Is(err, io.EOF) {
				if tail, ok := splitter.Flush(); ok {
					emit([][]byte{tail})
				}
				return
			}
			if err != nil {
				yield("", fmt.Errorf("reading upstream body: %w", err))
				return
			}
		}
	}
}

// Stream relays fragments from body to sink as they are decoded. Each
// fragment is written and flushed before the next read from body, so the
// sink applies backpressure to the upstream connection. A sink write error
// (for example a disconnected client) stops the relay immediately.
func (r *Relay) Stream(ctx context.Context, body io.Reader, sink io.Writer) (Stats, error) {
	var stats Stats

	for fragment, err := range r.Fragments(ctx, body) {
		if err != nil {
			return stats, err
		}

		stats.Fragments++
		if fragment == "" {
			continue
		}

		n, err := io.WriteString(sink, fragment)
		stats.Bytes += n
		if err != nil {
			return stats, fmt.Errorf("%w: writing fragment: %w", ErrSink, err)
		}

		if err := flush(sink); err != nil {
			return stats, fmt.Errorf("%w: flushing fragment: %w", ErrSink, err)
		}
	}

	return stats, nil
}

// Drain reads body to completion and returns the concatenation of every
// fragment in arrival order.
func (r *Relay) Drain(ctx context.Context, body io.Reader) (string, Stats, error) {
	var (
		stats Stats
		sb    strings.Builder
	)

	for fragment, err := range r.Fragments(ctx, body) {
		if err != nil {
			return "", stats, err
		}
		stats.Fragments++
		stats.Bytes += len(fragment)
		sb.WriteString(fragment)
	}

	return sb.String(), stats, nil
}

// flush pushes buffered sink data downstream when the sink supports it.
func flush(sink io.Writer) error {
	switch f := sink.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}
