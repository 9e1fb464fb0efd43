// parse request line and header block from a buffered connection
// only parser logic, body decoding lives in reader.go
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/url"
	"strings"
)

const (
	DefaultMaxHeaderBytes = 1<<16 - 1
	DefaultMaxHeaders     = 200

	maxEmptyLines = 100 // stray CRLFs allowed before request line
)

// Limits bounds the request head
type Limits struct {
	MaxHeaderBytes int // request line + all header lines
	MaxHeaders     int
}

func (l Limits) orDefault() Limits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if l.MaxHeaders <= 0 {
		l.MaxHeaders = DefaultMaxHeaders
	}
	return l
}

// Request is a parsed request head, body is not read yet
type Request struct {
	Method string
	Target string // request-target as sent
	URL    *url.URL
	Proto  string
	Major  int
	Minor  int

	Header Header

	Framing       Framing
	ContentLength int64 // -1 when chunked

	Close          bool // connection must not be reused after this request
	KeepAlive      bool // explicit keep-alive token
	ExpectContinue bool
}

func (r *Request) IsHTTP10() bool {
	return r.Major == 1 && r.Minor == 0
}

// Body returns decoder for request body that reads from br.
// No framing header means no body, the reader is at EOF right away.
func (r *Request) Body(br *bufio.Reader, maxLine int) io.Reader {
	switch r.Framing {
	case FramingFixed:
		return NewFixedReader(br, r.ContentLength)
	case FramingChunked:
		return NewChunkedReader(br, maxLine)
	}
	return eofReader{}
}

// ReadRequest reads one request head from br.
// It returns io.EOF if connection was closed before any request byte (blank lines excluded).
func ReadRequest(br *bufio.Reader, lim Limits) (*Request, error) {
	lim = lim.orDefault()
	budget := lim.MaxHeaderBytes

	// skip stray CRLFs left by clients after a body
	var line []byte
	var err error
	for empty := 0; ; empty++ {
		line, err = readLine(br, budget)
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				return nil, &Error{Status: 414, Reason: "request line too long", Err: err}
			}
			return nil, err
		}
		if len(line) > 0 {
			break
		}
		if empty >= maxEmptyLines {
			return nil, badRequest("too many empty lines")
		}
	}
	budget -= len(line) + 2

	req := &Request{}
	if err := req.parseRequestLine(string(line)); err != nil {
		return nil, err
	}

	for {
		line, err = readLine(br, budget)
		if err != nil {
			switch {
			case err == io.EOF:
				return nil, ErrTruncated
			case errors.Is(err, ErrLineTooLong):
				return nil, &Error{Status: 431, Reason: "header block too large", Err: err}
			}
			return nil, err
		}
		if budget -= len(line) + 2; budget < 0 {
			return nil, &Error{Status: 431, Reason: "header block too large"}
		}

		// blank line means that headers is over
		if len(line) == 0 {
			break
		}

		// obs-fold, continuation of the previous value
		if line[0] == ' ' || line[0] == '\t' {
			n := len(req.Header.fields)
			if n == 0 {
				return nil, badRequest("folded line before first header")
			}
			last := &req.Header.fields[n-1]
			if cont := trimOWS(line); len(cont) > 0 {
				if last.Val == "" {
					last.Val = string(cont)
				} else {
					last.Val += " " + string(cont)
				}
			}
			continue
		}

		if req.Header.Len() >= lim.MaxHeaders {
			return nil, &Error{Status: 431, Reason: "too many headers"}
		}

		coloni := bytes.IndexByte(line, ':')
		if coloni <= 0 {
			return nil, badRequest("malformed header line")
		}
		key := line[:coloni]
		if !isToken(key) {
			return nil, badRequest("malformed header name")
		}
		req.Header.Add(string(key), string(trimOWS(line[coloni+1:])))
	}

	if err := req.resolveFraming(); err != nil {
		return nil, err
	}
	req.resolveConnection()
	return req, nil
}

// find RawRequest method, target and protocol
func (r *Request) parseRequestLine(s string) error {
	method, rest, ok := strings.Cut(s, " ")
	if !ok {
		return badRequest("malformed request line")
	}
	target, version, ok := strings.Cut(rest, " ")
	if !ok || target == "" {
		return badRequest("malformed request line")
	}
	if !isToken([]byte(method)) {
		return badRequest("invalid method")
	}

	major, minor, ok := parseVersion(version)
	if !ok {
		if strings.HasPrefix(version, "HTTP/") {
			return &Error{Status: 505, Reason: "unsupported protocol " + version}
		}
		return badRequest("malformed protocol version")
	}
	if major != 1 {
		return &Error{Status: 505, Reason: "unsupported protocol " + version}
	}

	var u *url.URL
	if target == "*" {
		u = &url.URL{Path: "*"}
	} else {
		var err error
		if u, err = url.ParseRequestURI(target); err != nil {
			return &Error{Status: 400, Reason: "invalid request target", Err: err}
		}
	}

	r.Method, r.Target, r.URL = method, target, u
	r.Proto, r.Major, r.Minor = version, major, minor
	return nil
}

// HTTP/d.d, single digits only
func parseVersion(v string) (int, int, bool) {
	if len(v) != 8 || !strings.HasPrefix(v, "HTTP/") || v[6] != '.' {
		return 0, 0, false
	}
	maj, mnr := v[5], v[7]
	if maj < '0' || maj > '9' || mnr < '0' || mnr > '9' {
		return 0, 0, false
	}
	return int(maj - '0'), int(mnr - '0'), true
}

func (r *Request) resolveFraming() error {
	te := r.Header.Values("Transfer-Encoding")
	cl := r.Header.Values("Content-Length")

	if len(te) > 0 {
		chunked := 0
		for _, v := range te {
			for coding := range strings.SplitSeq(v, ",") {
				coding = strings.TrimSpace(coding)
				switch {
				case coding == "":
				case strings.EqualFold(coding, "chunked"):
					chunked++
				default:
					return &Error{Status: 501, Reason: "unsupported transfer coding " + coding}
				}
			}
		}
		if chunked != 1 {
			return badRequest("invalid Transfer-Encoding")
		}
		r.Framing, r.ContentLength = FramingChunked, -1

		// both present is ambiguous, chunked wins and connection is not reused
		if len(cl) > 0 {
			r.Header.Del("Content-Length")
			r.Close = true
		}
		return nil
	}

	if len(cl) == 0 {
		r.Framing = FramingNone
		return nil
	}

	n := int64(-1)
	for _, v := range cl {
		for s := range strings.SplitSeq(v, ",") {
			x, ok := parseContentLength(strings.TrimSpace(s))
			if !ok {
				return badRequest("invalid Content-Length")
			}
			if n >= 0 && n != x {
				return badRequest("conflicting Content-Length")
			}
			n = x
		}
	}
	r.Framing, r.ContentLength = FramingFixed, n
	return nil
}

func (r *Request) resolveConnection() {
	if r.Header.HasToken("Connection", "close") {
		r.Close = true
	}
	r.KeepAlive = r.Header.HasToken("Connection", "keep-alive")
	if r.IsHTTP10() && !r.KeepAlive {
		r.Close = true
	}
	r.ExpectContinue = !r.IsHTTP10() && r.Header.HasToken("Expect", "100-continue")
}

// digits only, no sign, no overflow
func parseContentLength(s string) (int64, bool) {
	if s == "" || len(s) > 18 {
		return 0, false
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// readLine returns next line w/o CRLF (or bare LF).
// Returned slice may refer to br's buffer and is valid until next read.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		switch {
		case err == nil:
			if line == nil {
				line = frag
			} else {
				line = append(line, frag...)
			}
			line = trimEOL(line)
			if len(line) > limit {
				return nil, ErrLineTooLong
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			line = append(line, frag...)
			if len(line) > limit {
				return nil, ErrLineTooLong
			}
		case err == io.EOF:
			if len(line)+len(frag) == 0 {
				return nil, io.EOF
			}
			return nil, ErrTruncated
		default:
			return nil, err
		}
	}
}

func trimEOL(b []byte) []byte {
	b = b[:len(b)-1]
	if len(b) > 0 && b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}
	return b
}

func trimOWS(b []byte) []byte {
	return bytes.Trim(b, " \t")
}

// token chars from RFC 9110 5.6.2
func isToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c >= 0x80 || !tokenTable[c] {
			return false
		}
	}
	return true
}

var tokenTable = func() (t [128]bool) {
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
		t[c-'a'+'A'] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		t[c] = true
	}
	return
}()

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
