package sse

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, r io.Reader) []Event {
	t.Helper()
	dec := NewDecoder(r)
	var events []Event
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestDecoder_WholeStream(t *testing.T) {
	stream := "event: message\nid: e1\ndata: {\"a\":1}\n\n" +
		"data: {\"a\":2}\n\n" +
		": a comment line, ignored\n" +
		"event: message\nid: e3\ndata: {\"a\":3}\n\n"

	events := decodeAll(t, bytes.NewReader([]byte(stream)))
	require.Len(t, events, 3)

	require.Equal(t, "e1", events[0].ID)
	require.True(t, events[0].IsMessageEvent())
	require.Equal(t, `{"a":1}`, events[0].Data)

	require.Equal(t, "", events[1].ID)
	require.True(t, events[1].IsMessageEvent())
	require.Equal(t, `{"a":2}`, events[1].Data)

	require.Equal(t, "e3", events[2].ID)
	require.Equal(t, `{"a":3}`, events[2].Data)
}

//chunkReader emits the underlying bytes in fixed-size reads, simulating an
//arbitrary byte-chunked network stream.
type chunkReader struct {
	data      []byte
	chunkSize int
	pos       int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	n := c.chunkSize
	if n > len(p) {
		n = len(p)
	}
	remaining := len(c.data) - c.pos
	if n > remaining {
		n = remaining
	}
	copy(p, c.data[c.pos:c.pos+n])
	c.pos += n
	return n, nil
}

func TestDecoder_IdempotentUnderArbitraryChunking(t *testing.T) {
	stream := []byte("event: message\nid: e1\ndata: {\"a\":1}\n\n" +
		"event: message\nid: e2\ndata: {\"a\":2}\n\n" +
		"event: message\nid: e3\ndata: {\"a\":3}\n\n")

	whole := decodeAll(t, bytes.NewReader(stream))

	for _, size := range []int{1, 2, 3, 5, 7, 16, 64} {
		chunked := decodeAll(t, &chunkReader{data: stream, chunkSize: size})
		require.Equal(t, whole, chunked, "chunk size %d produced a different event sequence", size)
	}
}

func TestDecoder_IgnoresUnknownFields(t *testing.T) {
	stream := "retry: 5000\nevent: message\ndata: {\"a\":1}\nfoo: bar\n\n"
	events := decodeAll(t, bytes.NewReader([]byte(stream)))
	require.Len(t, events, 1)
	require.Equal(t, `{"a":1}`, events[0].Data)
}
