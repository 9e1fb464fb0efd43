package wire

import (
	"errors"
	"io"
	"net"
	"time"
)

// Conn is a client connection that writes raw requests and reads parsed responses
type Conn struct {
	net.Conn
	buf []byte
	off int
	eof bool
}

func Dial(addr string) (*Conn, error) {
	c, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c, buf: make([]byte, 8<<10)}
}

func (c *Conn) Send(raw string) error {
	_, err := io.WriteString(c.Conn, raw)
	return err
}

// ReadResponse reads next response, interim 1xx responses included.
// Body of returned response is valid until next call.
func (c *Conn) ReadResponse(method string) (*Response, error) {
	for {
		if c.off > 0 || c.eof {
			resp, n, err := Parse(c.buf[:c.off], method, c.eof)
			switch {
			case err == nil:
				resp.Body = append([]byte(nil), resp.Body...)
				c.off = copy(c.buf, c.buf[n:c.off])
				return resp, nil
			case !errors.Is(err, ErrIncomplete):
				return nil, err
			case c.eof && c.off == 0:
				return nil, io.EOF
			case c.eof:
				return nil, io.ErrUnexpectedEOF
			}
		}

		if c.off == len(c.buf) {
			c.buf = append(c.buf, make([]byte, len(c.buf))...)
		}
		n, err := c.Conn.Read(c.buf[c.off:])
		c.off += n
		if err == io.EOF {
			c.eof = true
		} else if err != nil {
			return nil, err
		}
	}
}

// Closed reports whether peer closes the connection within timeout
// without sending anything more
func (c *Conn) Closed(timeout time.Duration) bool {
	if c.eof {
		return c.off == 0
	}
	c.SetReadDeadline(time.Now().Add(timeout))
	defer c.SetReadDeadline(time.Time{})
	var b [1]byte
	n, err := c.Conn.Read(b[:])
	return n == 0 && err != nil && !isTimeout(err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
