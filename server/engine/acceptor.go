// accept loop, only low level accept and tracking, no HTTP logic
package engine

import (
	"errors"
	"log/slog"
	"net"
	"time"
)

// callback func for handling accepted conn, it runs on its own goroutine
// and owns the session until it returns
type HandleConn func(s *Session)

// Acceptor accepts connections from a listener and hands them to a HandleConn
type Acceptor struct {
	ln      net.Listener
	tracker *Tracker
	handle  HandleConn
	log     *slog.Logger
}

func NewAcceptor(ln net.Listener, tracker *Tracker, handle HandleConn, log *slog.Logger) *Acceptor {
	if log == nil {
		log = slog.Default()
	}
	return &Acceptor{ln: ln, tracker: tracker, handle: handle, log: log}
}

func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Serve accepts until listener is closed, then returns nil.
// Temporary accept errors (EMFILE...) are retried with backoff.
func (a *Acceptor) Serve() error {
	var delay time.Duration
	for {
		c, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() || isTemporary(err) {
				delay = backoff(delay)
				a.log.Error("accept failed, retrying", slog.String("error", err.Error()), slog.Duration("delay", delay))
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0

		s := a.tracker.Track(c)
		go func() {
			defer a.tracker.Untrack(s)
			defer s.Close()
			a.handle(s)
		}()
	}
}

// Close stops accepting, already accepted conns are not touched
func (a *Acceptor) Close() error {
	return a.ln.Close()
}

func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}
