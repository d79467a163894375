package sse

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

const readChunkSize = 4096

//Decoder parses a byte stream into a sequence of Events, buffering partial
//frames across reads (spec.md section 4.3): frames are separated by a blank
//line; after each read the buffer is split on "\n\n", the trailing
//(possibly-incomplete) segment is kept for the next read, and the rest are
//emitted in order.
type Decoder struct {
	r       io.Reader
	buf     []byte
	pending []Event
	done    bool
}

//NewDecoder wraps r, typically an HTTP response body, as an SSE event source.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

//Next returns the next parsed event, reading from the underlying stream as
//needed. It returns io.EOF when the stream ends cleanly, and any other error
//from the underlying reader wrapped with an "sse: read stream" prefix.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.done {
			return Event{}, io.EOF
		}

		chunk := make([]byte, readChunkSize)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
			d.drainCompleteFrames()
		}
		if err != nil {
			d.done = true
			if err == io.EOF {
				continue
			}
			return Event{}, fmt.Errorf("sse: read stream: %w", err)
		}
	}
}

//drainCompleteFrames splits the rolling buffer on blank-line framing, keeping
//the trailing incomplete segment and queueing the rest as parsed events.
func (d *Decoder) drainCompleteFrames() {
	for {
		idx := bytes.Index(d.buf, []byte("\n\n"))
		if idx < 0 {
			return
		}
		frame := d.buf[:idx]
		d.buf = d.buf[idx+2:]
		if ev, ok := parseFrame(string(frame)); ok {
			d.pending = append(d.pending, ev)
		}
	}
}

//parseFrame parses one blank-line-delimited frame into an Event. Lines that
//don't match id:/event:/data: (unknown fields, ":"-prefixed comments) are
//ignored. Multiple data: lines join with "\n" per the SSE convention.
func parseFrame(frame string) (Event, bool) {
	var ev Event
	var dataLines []string
	sawField := false

	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "id:"):
			ev.ID = stripOneLeadingSpace(line[len("id:"):])
			sawField = true
		case strings.HasPrefix(line, "event:"):
			ev.Event = stripOneLeadingSpace(line[len("event:"):])
			sawField = true
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, stripOneLeadingSpace(line[len("data:"):]))
			sawField = true
		default:
			//comment (starts with ":") or unrecognized field: ignored
		}
	}
	if !sawField {
		return Event{}, false
	}
	if ev.Event == "" {
		ev.Event = "message"
	}
	ev.Data = strings.Join(dataLines, "\n")
	return ev, true
}

func stripOneLeadingSpace(s string) string {
	if strings.HasPrefix(s, " ") {
		return s[1:]
	}
	return s
}
