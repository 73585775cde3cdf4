// Package pipe carries framed JSON messages between the host and the
// runner subprocess over a platform pipe, multiplexing logical runs by
// an opaque request uuid.
package pipe

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Header names understood by the framing protocol. Anything else in the
// header block is ignored for forward compatibility.
const (
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
	HeaderRequestUUID   = "Request-uuid"
)

const headerSeparator = "\n\n"

// Frame is one complete framed message.
type Frame struct {
	UUID        string
	ContentType string
	Body        []byte
}

// EncodeFrame frames a body for the wire: `<headers>\n\n<body>`, with
// Content-Length giving the exact byte length of the body.
func EncodeFrame(uuid string, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %d\n", HeaderContentLength, len(body))
	fmt.Fprintf(&buf, "%s: application/json\n", HeaderContentType)
	fmt.Fprintf(&buf, "%s: %s\n", HeaderRequestUUID, uuid)
	buf.WriteString("\n")
	buf.Write(body)
	return buf.Bytes()
}

// Decoder reassembles frames from a byte stream delivered in arbitrary
// chunks. It keeps a rolling buffer across Feed calls: headers are
// parsed once a blank-line separator is seen, and a body is extracted
// only once Content-Length bytes are available past the separator.
// Surplus bytes start the next message's accumulation, so a single
// chunk may yield zero, one or many frames.
type Decoder struct {
	buf []byte
}

// Feed appends a chunk and returns every frame completed by it.
// Malformed or incomplete header blocks are treated as a
// partial-message condition and retried on the next chunk; they are
// never surfaced as frames.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		sep := bytes.Index(d.buf, []byte(headerSeparator))
		if sep < 0 {
			return frames
		}

		length, uuid, contentType, ok := parseHeaders(d.buf[:sep])
		if !ok {
			// Unparseable so far; wait for more bytes rather than
			// guessing at a message boundary.
			return frames
		}

		bodyStart := sep + len(headerSeparator)
		if len(d.buf) < bodyStart+length {
			return frames
		}

		body := make([]byte, length)
		copy(body, d.buf[bodyStart:bodyStart+length])
		frames = append(frames, Frame{UUID: uuid, ContentType: contentType, Body: body})

		// Shift the surplus forward to start the next accumulation.
		d.buf = append(d.buf[:0], d.buf[bodyStart+length:]...)
	}
}

// Pending returns the number of buffered bytes not yet assembled into a
// frame.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// parseHeaders reads the colon-separated header block. Content-Length
// is required; unknown keys are skipped.
func parseHeaders(block []byte) (length int, uuid, contentType string, ok bool) {
	length = -1
	for _, line := range strings.Split(string(block), "\n") {
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return 0, "", "", false
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case HeaderContentLength:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return 0, "", "", false
			}
			length = n
		case HeaderRequestUUID:
			uuid = value
		case HeaderContentType:
			contentType = value
		}
	}
	if length < 0 {
		return 0, "", "", false
	}
	return length, uuid, contentType, true
}
