// response body encoders, all of them write to the connection buffer
package protocol

import (
	"bufio"
	"strconv"
)

// DefaultChunkSize is the buffer size of ChunkedWriter
const DefaultChunkSize = 4096

// BodyWriter encodes a response body.
// Close completes the framing, it never closes the connection.
type BodyWriter interface {
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

// FixedWriter accepts exactly n bytes
type FixedWriter struct {
	w         *bufio.Writer
	remaining int64
	closed    bool
}

func NewFixedWriter(w *bufio.Writer, n int64) *FixedWriter {
	return &FixedWriter{w: w, remaining: n}
}

// Write rejects a write that would exceed the declared length, nothing is written then
func (f *FixedWriter) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrWriterClosed
	}
	if int64(len(p)) > f.remaining {
		return 0, ErrTooManyBytes
	}
	n, err := f.w.Write(p)
	f.remaining -= int64(n)
	return n, err
}

func (f *FixedWriter) Flush() error {
	if f.closed {
		return ErrWriterClosed
	}
	return f.w.Flush()
}

// Close fails with ErrInsufficientBytes if fewer than n bytes were written
func (f *FixedWriter) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.remaining > 0 {
		return ErrInsufficientBytes
	}
	return f.w.Flush()
}

func (f *FixedWriter) Remaining() int64 {
	return f.remaining
}

// ChunkedWriter buffers up to size bytes and emits a chunk whenever
// the buffer fills, on Flush and on Close
type ChunkedWriter struct {
	w      *bufio.Writer
	buf    []byte
	n      int // bytes pending in buf
	closed bool
}

func NewChunkedWriter(w *bufio.Writer, size int) *ChunkedWriter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ChunkedWriter{w: w, buf: make([]byte, size)}
}

func (c *ChunkedWriter) Write(p []byte) (int, error) {
	if c.closed {
		return 0, ErrWriterClosed
	}
	written := 0
	for len(p) > 0 {
		k := copy(c.buf[c.n:], p)
		c.n += k
		p = p[k:]
		written += k
		if c.n == len(c.buf) {
			if err := c.writeChunk(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// chunk-size CRLF chunk-data CRLF
func (c *ChunkedWriter) writeChunk() error {
	if c.n == 0 {
		return nil
	}
	var size [20]byte
	c.w.Write(strconv.AppendInt(size[:0], int64(c.n), 16))
	c.w.Write(crlf)
	c.w.Write(c.buf[:c.n])
	_, err := c.w.Write(crlf)
	c.n = 0
	return err
}

func (c *ChunkedWriter) Flush() error {
	if c.closed {
		return ErrWriterClosed
	}
	if err := c.writeChunk(); err != nil {
		return err
	}
	return c.w.Flush()
}

// Close emits pending data and the last-chunk
func (c *ChunkedWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.writeChunk(); err != nil {
		return err
	}
	if _, err := c.w.Write(lastChunk); err != nil {
		return err
	}
	return c.w.Flush()
}

// Abort drops pending data w/o the last-chunk, so peer sees unterminated body
func (c *ChunkedWriter) Abort() {
	c.closed = true
	c.n = 0
}

// CloseDelimitedWriter writes straight through, end of body is end of connection
type CloseDelimitedWriter struct {
	w      *bufio.Writer
	closed bool
}

func NewCloseDelimitedWriter(w *bufio.Writer) *CloseDelimitedWriter {
	return &CloseDelimitedWriter{w: w}
}

func (c *CloseDelimitedWriter) Write(p []byte) (int, error) {
	if c.closed {
		return 0, ErrWriterClosed
	}
	return c.w.Write(p)
}

func (c *CloseDelimitedWriter) Flush() error {
	if c.closed {
		return ErrWriterClosed
	}
	return c.w.Flush()
}

func (c *CloseDelimitedWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.w.Flush()
}

// DiscardWriter drops everything, for HEAD, 204 and 304
type DiscardWriter struct {
	Dropped int64
	closed  bool
}

func (d *DiscardWriter) Write(p []byte) (int, error) {
	if d.closed {
		return 0, ErrWriterClosed
	}
	d.Dropped += int64(len(p))
	return len(p), nil
}

func (d *DiscardWriter) Flush() error { return nil }

func (d *DiscardWriter) Close() error {
	d.closed = true
	return nil
}
