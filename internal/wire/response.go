// Package wire is a raw HTTP/1.1 client side used by tests to see exactly
// what a server put on the wire: status line, header order, chunk sizes.
package wire

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrInvalid    = errors.New("wire: invalid response")
	ErrIncomplete = errors.New("wire: incomplete response")
)

type Field struct {
	Key, Val string
}

type Response struct {
	Proto  string
	Status int
	Reason string
	Header []Field

	Body    []byte
	Chunks  []int // sizes of chunks as sent, terminator excluded
	Chunked bool
	// body runs until connection close, it's complete only at EOF
	CloseDelimited bool
}

func (r *Response) Get(key string) string {
	for _, f := range r.Header {
		if strings.EqualFold(f.Key, key) {
			return f.Val
		}
	}
	return ""
}

func (r *Response) Has(key string) bool {
	for _, f := range r.Header {
		if strings.EqualFold(f.Key, key) {
			return true
		}
	}
	return false
}

// bodyless reports whether response to method carries no body whatever its header says
func bodyless(method string, status int) bool {
	return method == "HEAD" || status < 200 || status == 204 || status == 304
}

// Parse parses one response from raw, method is of the request it answers.
// It returns number of consumed bytes, ErrIncomplete if raw ends early.
// eof tells that raw is everything the peer will ever send.
func Parse(raw []byte, method string, eof bool) (*Response, int, error) {
	resp := &Response{}
	crs := 0

	// find a separator
	findsep := func(start int, sep byte) int {
		idx := bytes.IndexByte(raw[start:], sep)
		if idx == -1 {
			return -1
		}
		return start + idx
	}
	line := func() (string, error) {
		lf := findsep(crs, '\n')
		if lf == -1 {
			return "", ErrIncomplete
		}
		if lf == crs || raw[lf-1] != '\r' {
			return "", ErrInvalid
		}
		s := string(raw[crs : lf-1])
		crs = lf + 1
		return s, nil
	}

	// status line: HTTP/1.1 200 OK
	sl, err := line()
	if err != nil {
		return nil, 0, err
	}
	proto, rest, ok := strings.Cut(sl, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return nil, 0, ErrInvalid
	}
	code, reason, _ := strings.Cut(rest, " ")
	if resp.Status, err = strconv.Atoi(code); err != nil || len(code) != 3 {
		return nil, 0, ErrInvalid
	}
	resp.Proto, resp.Reason = proto, reason

	// headers
	for {
		if crs+1 >= len(raw) {
			return nil, 0, ErrIncomplete
		}
		if raw[crs] == '\r' && raw[crs+1] == '\n' {
			crs += 2
			break
		}
		hl, err := line()
		if err != nil {
			return nil, 0, err
		}
		key, val, ok := strings.Cut(hl, ":")
		if !ok {
			return nil, 0, ErrInvalid
		}
		resp.Header = append(resp.Header, Field{key, strings.TrimSpace(val)})
	}

	switch {
	case bodyless(method, resp.Status):
		return resp, crs, nil
	case strings.EqualFold(resp.Get("Transfer-Encoding"), "chunked"):
		resp.Chunked = true
		n, err := parseChunks(raw[crs:], resp)
		if err != nil {
			return nil, 0, err
		}
		return resp, crs + n, nil
	case resp.Has("Content-Length"):
		n, err := strconv.Atoi(resp.Get("Content-Length"))
		if err != nil || n < 0 {
			return nil, 0, ErrInvalid
		}
		if crs+n > len(raw) {
			return nil, 0, ErrIncomplete
		}
		resp.Body = raw[crs : crs+n]
		return resp, crs + n, nil
	}

	resp.CloseDelimited = true
	if !eof {
		return nil, 0, ErrIncomplete
	}
	resp.Body = raw[crs:]
	return resp, len(raw), nil
}

func parseChunks(raw []byte, resp *Response) (int, error) {
	crs := 0
	var body []byte
	for {
		lf := bytes.IndexByte(raw[crs:], '\n')
		if lf == -1 {
			return 0, ErrIncomplete
		}
		lf += crs
		sizeField, _, _ := bytes.Cut(bytes.TrimRight(raw[crs:lf], "\r"), []byte(";"))
		size, err := strconv.ParseInt(string(sizeField), 16, 64)
		if err != nil || size < 0 {
			return 0, ErrInvalid
		}
		crs = lf + 1

		if size == 0 {
			break
		}
		if crs+int(size)+2 > len(raw) {
			return 0, ErrIncomplete
		}
		body = append(body, raw[crs:crs+int(size)]...)
		resp.Chunks = append(resp.Chunks, int(size))
		crs += int(size)
		if raw[crs] != '\r' || raw[crs+1] != '\n' {
			return 0, ErrInvalid
		}
		crs += 2
	}

	// trailers end with an empty line
	for {
		lf := bytes.IndexByte(raw[crs:], '\n')
		if lf == -1 {
			return 0, ErrIncomplete
		}
		empty := lf == 0 || lf == 1 && raw[crs] == '\r'
		crs += lf + 1
		if empty {
			break
		}
	}
	resp.Body = body
	return crs, nil
}
