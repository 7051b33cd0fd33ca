package sbs

import "bytes"

// delimiter terminates every SBS wire line. Feeds such as dump1090 also
// send a bare delimiter as a heartbeat when there is no traffic.
var delimiter = []byte("\r\n")

// Decoder extracts complete SBS lines from an arbitrarily chunked byte
// stream. Bytes after the last delimiter stay buffered until the next Feed;
// the buffer has no upper bound. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends p to the internal buffer and returns every complete line it
// now holds, in arrival order and without delimiters. Heartbeat lines (a
// bare delimiter) are absorbed and never returned. The result is
// independent of how the stream was chunked across Feed calls.
func (d *Decoder) Feed(p []byte) []string {
	d.buf = append(d.buf, p...)

	var lines []string
	for {
		i := bytes.Index(d.buf, delimiter)
		if i < 0 {
			break
		}
		if i > 0 {
			lines = append(lines, string(d.buf[:i]))
		}
		d.buf = d.buf[i+len(delimiter):]
	}

	// Reclaim the consumed prefix so a long-lived decoder does not pin
	// the whole history of the stream.
	if len(lines) > 0 && len(d.buf) > 0 {
		d.buf = append([]byte(nil), d.buf...)
	} else if len(d.buf) == 0 {
		d.buf = nil
	}
	return lines
}

// Pending reports the number of buffered bytes awaiting a delimiter.
// Undelimited trailing bytes are discarded when the Decoder is dropped,
// never surfaced as a final message.
func (d *Decoder) Pending() int {
	return len(d.buf)
}
