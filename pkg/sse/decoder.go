// Package sse decodes Server-Sent Events streams incrementally.
package sse

import (
	"io"
	"strings"
)

// Event is one dispatched server-sent event
type Event struct {
	// Type is the event: field; empty means the default "message" type
	Type string
	ID   string
	// Data joins multiple data: lines with "\n"
	Data string
}

// Decoder accumulates bytes and emits complete events. Partial input is kept
// until the blank line that ends its event arrives. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends p and returns every event completed by it, in order
func (d *Decoder) Feed(p []byte) []Event {
	d.buf = append(d.buf, p...)

	// a trailing CR may be the first half of CRLF split across reads
	holdCR := len(d.buf) > 0 && d.buf[len(d.buf)-1] == '\r'
	data := d.buf
	if holdCR {
		data = data[:len(data)-1]
	}

	events, rest := Split(string(data))
	d.buf = append(d.buf[:0], rest...)
	if holdCR {
		d.buf = append(d.buf, '\r')
	}
	return events
}

// Flush decodes whatever is buffered as a final event, for streams that end
// without a trailing blank line.
func (d *Decoder) Flush() []Event {
	rest := normalize(string(d.buf))
	d.buf = d.buf[:0]
	if ev, ok := parseBlock(rest); ok {
		return []Event{ev}
	}
	return nil
}

// Split decodes every complete event in s and returns the unterminated tail
func Split(s string) ([]Event, string) {
	s = normalize(s)

	var events []Event
	for {
		i := strings.Index(s, "\n\n")
		if i < 0 {
			return events, s
		}
		if ev, ok := parseBlock(s[:i]); ok {
			events = append(events, ev)
		}
		s = s[i+2:]
	}
}

func normalize(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// parseBlock decodes the lines of one event. ok is false when the block has no data.
func parseBlock(block string) (Event, bool) {
	var (
		ev      Event
		data    []string
		hasData bool
	)

	for _, line := range strings.Split(block, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
		}

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				ev.ID = value
			}
		}
	}

	if !hasData {
		return Event{}, false
	}
	ev.Data = strings.Join(data, "\n")
	return ev, true
}

const readChunk = 4096

// Reader yields events from an io.Reader one at a time
type Reader struct {
	src     io.Reader
	dec     Decoder
	chunk   []byte
	pending []Event
	err     error
	flushed bool
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{src: r, chunk: make([]byte, readChunk)}
}

// Next returns the next event. At the end of the stream it returns io.EOF after
// any final unterminated event; other read errors are returned as they occur.
func (r *Reader) Next() (Event, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			if r.err == io.EOF && !r.flushed {
				r.flushed = true
				r.pending = r.dec.Flush()
				continue
			}
			return Event{}, r.err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.dec.Feed(r.chunk[:n])...)
		}
		if err != nil {
			r.err = err
		}
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	return ev, nil
}
