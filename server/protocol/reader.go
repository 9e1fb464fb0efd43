// request body decoders
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

const (
	maxChunkLine = 4096 // chunk-size line with extensions
	maxTrailers  = 64
)

// FixedReader yields exactly n bytes of r.
// EOF of r before n bytes is ErrTruncated, never a short body.
type FixedReader struct {
	r         io.Reader
	remaining int64
}

func NewFixedReader(r io.Reader, n int64) *FixedReader {
	return &FixedReader{r: r, remaining: n}
}

func (f *FixedReader) Read(p []byte) (int, error) {
	if f.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > f.remaining {
		p = p[:f.remaining]
	}
	n, err := f.r.Read(p)
	f.remaining -= int64(n)
	if err == io.EOF {
		if f.remaining > 0 {
			return n, ErrTruncated
		}
		err = nil
	}
	return n, err
}

// Remaining is number of body bytes not read yet
func (f *FixedReader) Remaining() int64 {
	return f.remaining
}

// ChunkedReader decodes chunked transfer coding.
// Trailer fields are read and dropped. Errors are sticky.
type ChunkedReader struct {
	br      *bufio.Reader
	maxLine int

	remaining int64 // bytes left in current chunk
	needCRLF  bool  // chunk-data was read, CRLF is next
	done      bool
	err       error
}

func NewChunkedReader(br *bufio.Reader, maxLine int) *ChunkedReader {
	if maxLine <= 0 || maxLine > maxChunkLine {
		maxLine = maxChunkLine
	}
	return &ChunkedReader{br: br, maxLine: maxLine}
}

func (c *ChunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	for c.remaining == 0 {
		if c.needCRLF {
			if c.err = c.readCRLF(); c.err != nil {
				return 0, c.err
			}
			c.needCRLF = false
		}

		size, err := c.readSize()
		if err != nil {
			c.err = err
			return 0, err
		}

		// last-chunk, then trailer-section CRLF
		if size == 0 {
			if c.err = c.skipTrailers(); c.err != nil {
				return 0, c.err
			}
			c.done = true
			return 0, io.EOF
		}
		c.remaining = size
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.br.Read(p)
	c.remaining -= int64(n)
	if c.remaining == 0 {
		c.needCRLF = true
	}
	if err == io.EOF {
		// even a full chunk still misses its CRLF and the last-chunk
		c.err = ErrTruncated
		return n, c.err
	}
	if err != nil {
		c.err = err
	}
	return n, err
}

// chunk-size [ chunk-ext ] CRLF
func (c *ChunkedReader) readSize() (int64, error) {
	line, err := c.readLine()
	if err != nil {
		return 0, err
	}
	for i, b := range line {
		if b == ';' {
			line = line[:i]
			break
		}
	}
	line = trimOWS(line)
	if len(line) == 0 {
		return 0, ErrMalformedChunk
	}
	// leading zeros are allowed in any number
	digits := bytes.TrimLeft(line, "0")
	if len(digits) == 0 {
		return 0, nil
	}
	if len(digits) > 15 {
		return 0, ErrMalformedChunk
	}
	size, err := strconv.ParseUint(string(digits), 16, 63)
	if err != nil {
		return 0, ErrMalformedChunk
	}
	return int64(size), nil
}

// CRLF or bare LF after chunk-data
func (c *ChunkedReader) readCRLF() error {
	b, err := c.br.ReadByte()
	if err != nil {
		return truncated(err)
	}
	if b == '\r' {
		if b, err = c.br.ReadByte(); err != nil {
			return truncated(err)
		}
	}
	if b != '\n' {
		return ErrMalformedChunk
	}
	return nil
}

func (c *ChunkedReader) skipTrailers() error {
	for range maxTrailers + 1 {
		line, err := c.readLine()
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
	}
	return ErrMalformedChunk
}

func (c *ChunkedReader) readLine() ([]byte, error) {
	line, err := readLine(c.br, c.maxLine)
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, ErrLineTooLong):
		return nil, ErrMalformedChunk
	}
	return nil, truncated(err)
}

func truncated(err error) error {
	if err == io.EOF {
		return ErrTruncated
	}
	return err
}
