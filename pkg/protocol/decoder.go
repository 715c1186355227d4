package protocol

import (
	"errors"
	"io"
)

// Decoder extracts frames from a byte stream that may contain garbage or
// partial frames. It scans for a known header, waits for the fixed-size
// body, and checks the tail. On a bad tail the header byte is discarded and
// scanning restarts at the next byte.
type Decoder struct {
	buf     []byte
	dropped int
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 64)}
}

// Feed appends p to the pending stream and returns every complete frame
// found, in stream order.
func (d *Decoder) Feed(p []byte) []Frame {
	d.buf = append(d.buf, p...)

	var frames []Frame
	for len(d.buf) > 0 {
		f, n, err := Decode(d.buf)
		switch {
		case err == nil:
			frames = append(frames, f)
			d.buf = d.buf[n:]
		case errors.Is(err, ErrShortFrame):
			d.compact()
			return frames
		default:
			d.buf = d.buf[1:]
			d.dropped++
		}
	}
	d.compact()
	return frames
}

// Dropped returns how many bytes were skipped while resynchronizing.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset discards buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

func (d *Decoder) compact() {
	if cap(d.buf) > 256 && len(d.buf) < cap(d.buf)/4 {
		b := make([]byte, len(d.buf), 64)
		copy(b, d.buf)
		d.buf = b
	}
}

// ReadFrames reads r until it fails, calling fn for each decoded frame.
// The read error is returned; io.EOF is reported as nil.
func ReadFrames(r io.Reader, fn func(Frame)) error {
	d := NewDecoder()
	chunk := make([]byte, 128)
	for {
		n, err := r.Read(chunk)
		for _, f := range d.Feed(chunk[:n]) {
			fn(f)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
