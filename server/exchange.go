package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/s00inx/xchgserver/server/auth"
	"github.com/s00inx/xchgserver/server/protocol"
)

// Exchange is one request and its response.
// Handler owns it until Close, after that the connection moves on.
type Exchange struct {
	conn      *conn
	req       *protocol.Request
	route     *Context
	principal *auth.Principal

	reqBody  *RequestBody
	respBody *ResponseBody

	mu         sync.Mutex
	respHeader protocol.Header
	status     int
	framing    protocol.Framing
	sent       bool
	closed     bool
	closeConn  bool // connection is not reused after this exchange
	err        error

	released chan struct{}
}

func newExchange(c *conn, req *protocol.Request) *Exchange {
	ex := &Exchange{
		conn:     c,
		req:      req,
		status:   -1,
		released: make(chan struct{}),
	}
	ex.reqBody = &RequestBody{ex: ex, r: req.Body(c.br, c.srv.cfg.MaxHeaderBytes)}
	ex.respBody = &ResponseBody{ex: ex}
	return ex
}

func (ex *Exchange) Method() string              { return ex.req.Method }
func (ex *Exchange) RequestURI() *url.URL        { return ex.req.URL }
func (ex *Exchange) Protocol() string            { return ex.req.Proto }
func (ex *Exchange) RequestBody() *RequestBody   { return ex.reqBody }
func (ex *Exchange) ResponseBody() *ResponseBody { return ex.respBody }

// RequestHeader is the parsed request head, handlers should not modify it
func (ex *Exchange) RequestHeader() *protocol.Header { return &ex.req.Header }

// ResponseHeader is sent by SendResponseHeaders, changes made after it are not sent
func (ex *Exchange) ResponseHeader() *protocol.Header { return &ex.respHeader }

// HTTPContext is the context that matched the request, nil for server generated replies
func (ex *Exchange) HTTPContext() *Context { return ex.route }

// Principal is set when context authenticator accepted the request
func (ex *Exchange) Principal() *auth.Principal { return ex.principal }

// Context is cancelled when the connection goes away
func (ex *Exchange) Context() context.Context { return ex.conn.ctx }

func (ex *Exchange) LocalAddr() net.Addr  { return ex.conn.rwc.LocalAddr() }
func (ex *Exchange) RemoteAddr() net.Addr { return ex.conn.rwc.RemoteAddr() }

// ResponseCode is the sent status, -1 until headers are sent
func (ex *Exchange) ResponseCode() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.status
}

// SendResponseHeaders writes the status line and response header, it can be called once.
//
// length > 0 announces exact body length, writes beyond it fail with protocol.ErrTooManyBytes.
// length == 0 streams the body, chunked for HTTP/1.1 and until close for HTTP/1.0.
// length < 0 means no body, Content-Length: 0 is sent.
//
// 204 and 304 get no framing headers of ours and any body written is dropped,
// so is the body of a response to HEAD, which still gets GET's headers.
func (ex *Exchange) SendResponseHeaders(code int, length int64) error {
	if code < 200 || code > 999 {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, code)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	switch {
	case ex.closed:
		return ErrExchangeClosed
	case ex.sent:
		return ErrHeadersSent
	}
	return ex.sendLocked(code, length)
}

func (ex *Exchange) sendLocked(code int, length int64) error {
	h, bw := &ex.respHeader, ex.conn.bw

	var w protocol.BodyWriter
	switch {
	case code == 204 || code == 304:
		ex.framing = protocol.FramingNone
		w = &protocol.DiscardWriter{}
	case length == 0 && ex.req.IsHTTP10():
		h.Del("Content-Length")
		h.Del("Transfer-Encoding")
		ex.framing = protocol.FramingCloseDelimited
		w = protocol.NewCloseDelimitedWriter(bw)
	case length == 0:
		h.Del("Content-Length")
		h.Set("Transfer-Encoding", "chunked")
		ex.framing = protocol.FramingChunked
		w = protocol.NewChunkedWriter(bw, ex.conn.srv.cfg.ChunkSize)
	default:
		if length < 0 {
			length = 0
		}
		h.Del("Transfer-Encoding")
		h.Set("Content-Length", strconv.FormatInt(length, 10))
		ex.framing = protocol.FramingFixed
		w = protocol.NewFixedWriter(bw, length)
	}
	if ex.req.Method == "HEAD" {
		w = &protocol.DiscardWriter{}
	}

	if !ex.closeConn && (!keepAlive(ex.req, h, ex.framing) || ex.conn.srv.isStopping() ||
		!ex.reqBody.drainable(ex.conn.srv.cfg.MaxDrainBytes)) {
		ex.closeConn = true
	}
	switch {
	case ex.closeConn:
		if !h.HasToken("Connection", "close") {
			h.Set("Connection", "close")
		}
	case ex.req.IsHTTP10():
		h.Set("Connection", "keep-alive")
	}
	if !h.Has("Date") {
		h.Set("Date", string(protocol.AppendDate(nil, time.Now())))
	}

	ex.sent = true
	ex.status = code
	ex.respBody.w = w

	err := protocol.WriteHead(bw, code, h)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		ex.closeConn = true
		return fmt.Errorf("send response headers: %w", err)
	}
	return nil
}

// Close finishes the exchange: the request body is closed and the response completed.
// Closing without sent headers answers 500. It returns the error of completing
// the response, protocol.ErrInsufficientBytes for a short fixed length body.
func (ex *Exchange) Close() error {
	return ex.finish(nil)
}

// finish is Close, failure != nil means the handler failed
func (ex *Exchange) finish(failure error) error {
	ex.reqBody.Close()

	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.closed {
		return ex.err
	}

	switch {
	case !ex.sent:
		ex.closeConn = true
		ex.respHeader = protocol.Header{}
		ex.writeTextLocked(500, "Internal Server Error")
		ex.completeLocked()
	case failure != nil:
		// body is incomplete, the peer learns it from the closed connection
		ex.closeConn = true
		if cw, ok := ex.respBody.w.(*protocol.ChunkedWriter); ok {
			cw.Abort()
		}
		ex.conn.bw.Flush()
	default:
		ex.completeLocked()
	}

	ex.closed = true
	close(ex.released)
	return ex.err
}

func (ex *Exchange) completeLocked() {
	if err := ex.respBody.w.Close(); err != nil {
		ex.closeConn = true
		ex.err = err
		return
	}
	if err := ex.conn.bw.Flush(); err != nil {
		ex.closeConn = true
		ex.err = err
	}
}

// reply sends a server generated response, extra is added to response header
func (ex *Exchange) reply(code int, extra *protocol.Header, msg string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.sent || ex.closed {
		return
	}
	if extra != nil {
		extra.Each(func(k, v string) bool {
			ex.respHeader.Add(k, v)
			return true
		})
	}
	ex.writeTextLocked(code, msg)
}

func (ex *Exchange) writeTextLocked(code int, msg string) {
	length := int64(-1)
	if msg != "" {
		ex.respHeader.Set("Content-Type", "text/plain; charset=utf-8")
		length = int64(len(msg))
	}
	if err := ex.sendLocked(code, length); err != nil {
		return
	}
	if msg != "" {
		ex.respBody.w.Write([]byte(msg))
	}
}

func (ex *Exchange) markClose() {
	ex.mu.Lock()
	ex.closeConn = true
	ex.mu.Unlock()
}

func (ex *Exchange) mustClose() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.closeConn
}

// sendContinue answers Expect: 100-continue unless the final response is already out
func (ex *Exchange) sendContinue() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.sent || ex.closed {
		return
	}
	if protocol.WriteContinue(ex.conn.bw) == nil {
		ex.conn.bw.Flush()
	}
}

// RequestBody decodes request body per its framing.
// Reading at the end yields io.EOF, a body cut short yields protocol.ErrTruncated.
type RequestBody struct {
	ex *Exchange
	r  io.Reader

	mu     sync.Mutex
	closed bool

	// read without mu when the response head is decided
	eof       atomic.Bool
	continued atomic.Bool // 100 Continue was sent or wasn't needed
	consumed  atomic.Int64
}

func (b *RequestBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBodyClosed
	}
	if b.eof.Load() {
		return 0, io.EOF
	}
	if !b.continued.Swap(true) && b.ex.req.ExpectContinue {
		b.ex.sendContinue()
	}

	n, err := b.r.Read(p)
	b.consumed.Add(int64(n))
	switch {
	case err == io.EOF:
		b.eof.Store(true)
	case err != nil:
		b.ex.markClose()
		err = fmt.Errorf("read request body: %w", err)
	}
	return n, err
}

// Close stops reading, unread body is drained by the server if it's small enough
func (b *RequestBody) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// drain discards up to max unread bytes so the connection can take the next request
func (b *RequestBody) drain(max int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.drainable(max) {
		return ErrDrainLimit
	}
	if b.eof.Load() {
		return nil
	}

	n, err := io.Copy(io.Discard, io.LimitReader(b.r, max+1))
	switch {
	case err != nil:
		return err
	case n > max:
		return ErrDrainLimit
	}
	b.eof.Store(true)
	return nil
}

// drainable reports whether the unread rest of the body can be discarded
// within max bytes. A chunked body is assumed drainable, its size is unknown.
func (b *RequestBody) drainable(max int64) bool {
	req := b.ex.req
	switch {
	case b.eof.Load() || req.Framing == protocol.FramingNone:
		return true
	case req.ExpectContinue && !b.continued.Load():
		// client waits for 100 Continue, it may never send the body
		return false
	case req.Framing == protocol.FramingFixed:
		return req.ContentLength-b.consumed.Load() <= max
	}
	return true
}

// ResponseBody writes response body with the framing picked by SendResponseHeaders
type ResponseBody struct {
	ex *Exchange
	w  protocol.BodyWriter
}

func (b *ResponseBody) Write(p []byte) (int, error) {
	ex := b.ex
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if err := ex.writableLocked(); err != nil {
		return 0, err
	}

	n, err := b.w.Write(p)
	if err != nil && !errors.Is(err, protocol.ErrTooManyBytes) {
		ex.closeConn = true
	}
	return n, err
}

// Flush pushes buffered body bytes to the peer, a chunked body gets a chunk
func (b *ResponseBody) Flush() error {
	ex := b.ex
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if err := ex.writableLocked(); err != nil {
		return err
	}

	if err := b.w.Flush(); err != nil {
		ex.closeConn = true
		return err
	}
	return nil
}

// Close closes the exchange
func (b *ResponseBody) Close() error {
	return b.ex.Close()
}

func (ex *Exchange) writableLocked() error {
	switch {
	case ex.closed:
		return ErrExchangeClosed
	case !ex.sent:
		return ErrHeadersNotSent
	}
	return nil
}
