package wire

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		method   string
		eof      bool
		wantErr  error
		status   int
		body     string
		chunks   []int
		consumed int
	}{
		{
			name:     "fixed",
			raw:      "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhelloGARBAGE",
			method:   "GET",
			status:   200,
			body:     "hello",
			consumed: 43,
		},
		{
			name:   "chunked",
			raw:    "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n2;x=y\r\nde\r\n0\r\n\r\n",
			method: "GET",
			status: 200,
			body:   "abcde",
			chunks: []int{3, 2},
		},
		{
			name:   "head ignores length",
			raw:    "HTTP/1.1 200 OK\r\nContent-Length: 11\r\n\r\n",
			method: "HEAD",
			status: 200,
		},
		{
			name:   "not modified",
			raw:    "HTTP/1.1 304 Not Modified\r\nContent-Length: 1234\r\n\r\n",
			method: "GET",
			status: 304,
		},
		{
			name:   "close delimited",
			raw:    "HTTP/1.0 200 OK\r\n\r\nuntil the end",
			method: "GET",
			eof:    true,
			status: 200,
			body:   "until the end",
		},
		{name: "close delimited open", raw: "HTTP/1.1 200 OK\r\n\r\nabc", method: "GET", wantErr: ErrIncomplete},
		{name: "short body", raw: "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhel", method: "GET", wantErr: ErrIncomplete},
		{name: "short chunk", raw: "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nab", method: "GET", wantErr: ErrIncomplete},
		{name: "bad status", raw: "HTTP/1.1 2x0 OK\r\n\r\n", method: "GET", wantErr: ErrInvalid},
		{name: "bare lf", raw: "HTTP/1.1 200 OK\n\n", method: "GET", wantErr: ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, n, err := Parse([]byte(tt.raw), tt.method, tt.eof)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.body, string(resp.Body))
			assert.Equal(t, tt.chunks, resp.Chunks)
			if tt.consumed > 0 {
				assert.Equal(t, tt.consumed, n)
			}
		})
	}
}

func TestConnReadResponse(t *testing.T) {
	a, b := net.Pipe()
	c := NewConn(a)
	go func() {
		io.WriteString(b, "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\nContent-Length: 2\r\n")
		io.WriteString(b, "\r\nokHTTP/1.1 204 No Content\r\n\r\n")
		b.Close()
	}()

	resp, err := c.ReadResponse("POST")
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Status)

	resp, err = c.ReadResponse("POST")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))

	resp, err = c.ReadResponse("GET")
	require.NoError(t, err)
	assert.Equal(t, 204, resp.Status)

	_, err = c.ReadResponse("GET")
	assert.ErrorIs(t, err, io.EOF)
}
