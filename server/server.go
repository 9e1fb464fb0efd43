// Package server is an embeddable HTTP/1.x server built around exchanges:
// a handler gets the request, sends the response head once and streams the body.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/s00inx/xchgserver/server/engine"
	"github.com/s00inx/xchgserver/server/protocol"
	"github.com/s00inx/xchgserver/server/router"
)

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// stopPoll is how often Stop closes conns that went idle while it waits
const stopPoll = 10 * time.Millisecond

type Server struct {
	cfg      Config
	log      *slog.Logger
	limits   protocol.Limits
	contexts *router.Table[*Context]
	executor engine.Executor
	goExec   *engine.GoExecutor // default executor, nil if Config has one
	tracker  *engine.Tracker

	mu         sync.Mutex
	state      state
	acceptor   *engine.Acceptor
	acceptDone chan struct{}
	acceptErr  error

	stopping atomic.Bool
	killed   chan struct{} // closed when Stop gives up on active exchanges
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		limits:   protocol.Limits{MaxHeaderBytes: cfg.MaxHeaderBytes, MaxHeaders: cfg.MaxHeaders},
		contexts: router.New[*Context](),
		executor: cfg.Executor,
		tracker:  engine.NewTracker(),
		killed:   make(chan struct{}),
	}
	if s.executor == nil {
		s.goExec = &engine.GoExecutor{}
		s.executor = s.goExec
	}
	return s, nil
}

// Handle registers handler for path prefix. The longest registered prefix of
// request path wins, prefixes match by characters so /app also takes /apple.
// Contexts can be added and removed while the server runs.
func (s *Server) Handle(path string, h Handler, opts ...ContextOption) (*Context, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if h == nil {
		return nil, ErrNilHandler
	}

	c := &Context{path: path, handler: h, server: s}
	for _, opt := range opts {
		opt(c)
	}
	c.buildChain()

	if err := s.contexts.Insert(path, c); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrContextExists, path)
	}
	s.log.Debug("context registered", slog.String("path", path))
	return c, nil
}

func (s *Server) HandleFunc(path string, f func(ex *Exchange) error, opts ...ContextOption) (*Context, error) {
	return s.Handle(path, HandlerFunc(f), opts...)
}

// Unregister removes context with exactly this path, exchanges in flight are not affected
func (s *Server) Unregister(path string) error {
	if err := s.contexts.Remove(path); err != nil {
		return fmt.Errorf("%w: %q", ErrNoContext, path)
	}
	return nil
}

// Start binds Config.Addr and starts accepting in background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startable(); err != nil {
		return err
	}

	ln, err := engine.Listen(s.listenConfig())
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.startLocked(ln)
	return nil
}

// StartListener is Start on a listener of the caller, connection cap and TLS of Config apply to it
func (s *Server) StartListener(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startable(); err != nil {
		return err
	}
	s.startLocked(engine.Wrap(ln, s.listenConfig()))
	return nil
}

func (s *Server) startable() error {
	switch s.state {
	case stateRunning:
		return ErrServerStarted
	case stateStopped:
		return ErrServerClosed
	}
	return nil
}

func (s *Server) listenConfig() engine.ListenConfig {
	return engine.ListenConfig{
		Addr:           s.cfg.Addr,
		Backlog:        s.cfg.Backlog,
		MaxConnections: s.cfg.MaxConnections,
		TLSConfig:      s.cfg.TLSConfig,
	}
}

func (s *Server) startLocked(ln net.Listener) {
	s.acceptor = engine.NewAcceptor(ln, s.tracker, s.serveSession, s.log)
	s.acceptDone = make(chan struct{})
	s.state = stateRunning

	go func() {
		defer close(s.acceptDone)
		if err := s.acceptor.Serve(); err != nil {
			s.log.Error("accept loop stopped", slog.String("error", err.Error()))
			s.mu.Lock()
			s.acceptErr = err
			s.mu.Unlock()
		}
	}()
	s.log.Info("server started", slog.String("addr", ln.Addr().String()))
}

func (s *Server) serveSession(sess *engine.Session) {
	newConn(s, sess).serve()
}

// Addr is the bound address, nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

func (s *Server) isStopping() bool {
	return s.stopping.Load()
}

// Stop stops accepting, closes idle connections and waits up to delay for
// exchanges in flight to finish, what is left after delay is closed.
// Responses completed during the wait go out with Connection: close.
// It returns the error that stopped the accept loop, if any.
func (s *Server) Stop(delay time.Duration) error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.state = stateStopped
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopped
	s.mu.Unlock()

	s.stopping.Store(true)
	s.acceptor.Close()
	<-s.acceptDone

	deadline := time.Now().Add(max(delay, 0))
	drained := make(chan struct{})
	go func() {
		s.tracker.Wait(-1)
		close(drained)
	}()

	timer := time.NewTimer(max(delay, 0))
	defer timer.Stop()
	poll := time.NewTicker(stopPoll)
	defer poll.Stop()
wait:
	for {
		// conns go idle between requests, close them as they do
		s.tracker.CloseIdle()
		select {
		case <-drained:
			break wait
		case <-timer.C:
			break wait
		case <-poll.C:
		}
	}
	if n := s.tracker.Len(); n > 0 {
		s.log.Warn("closing connections with exchanges in flight", slog.Int("count", n))
		close(s.killed)
		s.tracker.CloseAll()
	}
	<-drained
	if s.goExec != nil && !s.goExec.Wait(max(time.Until(deadline), 0)) {
		s.log.Warn("handlers still running after stop")
	}
	s.log.Info("server stopped")

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptErr
}
