package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"time"

	"github.com/s00inx/xchgserver/server/auth"
	"github.com/s00inx/xchgserver/server/engine"
	"github.com/s00inx/xchgserver/server/protocol"
)

const (
	bufSize        = 4 << 10
	maxLingerBytes = 256 << 10
)

// conn serves requests of one connection one after another
type conn struct {
	srv  *Server
	sess *engine.Session
	rwc  net.Conn
	rd   *deadlineReader
	br   *bufio.Reader
	bw   *bufio.Writer
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	noLinger bool // nothing was answered that the peer could lose to a reset
}

func newConn(srv *Server, s *engine.Session) *conn {
	c := &conn{
		srv:  srv,
		sess: s,
		rwc:  s.Conn,
		rd:   &deadlineReader{c: s.Conn},
		log:  srv.log.With(slog.String("remote", s.Conn.RemoteAddr().String())),
	}
	c.br = bufio.NewReaderSize(c.rd, bufSize)
	c.bw = bufio.NewWriterSize(&deadlineWriter{c: s.Conn, timeout: srv.cfg.WriteTimeout}, bufSize)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

func (c *conn) serve() {
	c.log.Debug("connection opened")
	defer c.log.Debug("connection closed")
	defer c.cancel()
	defer c.lingerClose()

	for {
		if c.srv.isStopping() || !c.sess.Idle() {
			return
		}
		c.rd.timeout = c.srv.cfg.IdleTimeout
		if _, err := c.br.Peek(1); err != nil {
			c.readFailed(err)
			return
		}
		if !c.sess.Activate() {
			return
		}

		c.rd.timeout = c.srv.cfg.ReadTimeout
		req, err := protocol.ReadRequest(c.br, c.srv.limits)
		if err != nil {
			c.readFailed(err)
			return
		}
		if !c.serveExchange(newExchange(c, req)) {
			return
		}
	}
}

// serveExchange routes, authenticates and dispatches one request,
// it reports whether connection may take the next one
func (c *conn) serveExchange(ex *Exchange) bool {
	if route, ok := c.srv.contexts.Match(ex.req.URL.Path); !ok {
		ex.reply(404, nil, "No context found for request")
		ex.finish(nil)
	} else if ex.route = route; c.authenticate(ex) {
		c.dispatch(ex)
	}

	select {
	case <-ex.released:
	case <-c.srv.killed:
		return false
	}

	if ex.mustClose() {
		return false
	}
	if err := ex.reqBody.drain(c.srv.cfg.MaxDrainBytes); err != nil {
		c.log.Debug("request body not drained", slog.String("error", err.Error()))
		return false
	}
	return true
}

// authenticate reports whether handler should run, otherwise the exchange is answered
func (c *conn) authenticate(ex *Exchange) bool {
	a := ex.route.auth
	if a == nil {
		return true
	}

	res := c.runAuthenticator(a, &ex.req.Header)
	switch res.Outcome {
	case auth.Success:
		ex.principal = res.Principal
		return true
	case auth.Retry:
		ex.reply(statusOr(res.Status, 401), &res.Header, "")
	default:
		if res.Err != nil {
			c.log.Error("authentication failed", slog.String("path", ex.route.path), slog.String("error", res.Err.Error()))
			ex.markClose()
		}
		ex.reply(statusOr(res.Status, 500), &res.Header, "")
	}
	ex.finish(nil)
	return false
}

func (c *conn) runAuthenticator(a auth.Authenticator, h *protocol.Header) (res auth.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = auth.Result{Outcome: auth.Failure, Status: 500, Err: fmt.Errorf("authenticator panicked: %v", r)}
		}
	}()
	return a.Authenticate(h)
}

func statusOr(status, def int) int {
	if status < 200 || status > 999 {
		return def
	}
	return status
}

func (c *conn) dispatch(ex *Exchange) {
	err := c.srv.executor.Execute(func() {
		err := c.runHandler(ex)
		if err != nil {
			c.log.Warn("handler failed", slog.String("path", ex.route.path), slog.String("error", err.Error()))
		}
		ex.finish(err)
	})
	if err != nil {
		c.log.Error("executor rejected exchange", slog.String("error", err.Error()))
		ex.markClose()
		ex.reply(503, nil, "Service Unavailable")
		ex.finish(nil)
	}
}

func (c *conn) runHandler(ex *Exchange) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return ex.route.chain.ServeExchange(ex)
}

// readFailed answers malformed requests, everything else just ends the connection
func (c *conn) readFailed(err error) {
	var pe *protocol.Error
	if errors.As(err, &pe) {
		c.log.Warn("bad request", slog.Int("status", pe.Status), slog.String("error", pe.Error()))
		c.writeError(pe.Status, pe.Reason)
		return
	}

	c.noLinger = true
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.Is(err, os.ErrDeadlineExceeded):
		c.log.Debug("connection timed out", slog.String("state", c.sess.State().String()))
	default:
		c.log.Debug("read failed", slog.String("error", err.Error()))
	}
}

// writeError answers a request that never became an exchange and closes the connection
func (c *conn) writeError(status int, msg string) {
	body := msg + "\n"
	h := protocol.NewHeader(
		"Content-Type", "text/plain; charset=utf-8",
		"Content-Length", fmt.Sprint(len(body)),
		"Connection", "close",
		"Date", string(protocol.AppendDate(nil, time.Now())),
	)
	if protocol.WriteHead(c.bw, status, &h) != nil {
		return
	}
	c.bw.WriteString(body)
	c.bw.Flush()
}

// lingerClose half closes and drains what the peer is still sending,
// so a reset does not destroy the response in flight
func (c *conn) lingerClose() {
	if c.noLinger || c.sess.State() == engine.StateClosed || c.srv.cfg.LingerTimeout <= 0 {
		return
	}
	cw, ok := c.rwc.(interface{ CloseWrite() error })
	if !ok || cw.CloseWrite() != nil {
		return
	}
	c.rwc.SetReadDeadline(time.Now().Add(c.srv.cfg.LingerTimeout))
	io.Copy(io.Discard, io.LimitReader(c.rwc, maxLingerBytes))
}

// connection is reusable only if neither side asked to close and
// the response end is known without closing
func keepAlive(req *protocol.Request, resp *protocol.Header, framing protocol.Framing) bool {
	switch {
	case req.Close:
		return false
	case resp.HasToken("Connection", "close"):
		return false
	case framing == protocol.FramingCloseDelimited:
		return false
	}
	return true
}

// deadlineReader sets read deadline before every read, timeout 0 clears it
type deadlineReader struct {
	c       net.Conn
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		d.c.SetReadDeadline(time.Now().Add(d.timeout))
	} else {
		d.c.SetReadDeadline(time.Time{})
	}
	return d.c.Read(p)
}

type deadlineWriter struct {
	c       net.Conn
	timeout time.Duration
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if d.timeout > 0 {
		d.c.SetWriteDeadline(time.Now().Add(d.timeout))
	}
	return d.c.Write(p)
}
