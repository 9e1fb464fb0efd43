// live connection table, the server uses it to close idle conns on shutdown
package engine

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ConnState is lifecycle state of a tracked connection
type ConnState int32

const (
	StateIdle   ConnState = iota // waiting for next request
	StateActive                  // request is being read or served
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the tracker entry of one connection
type Session struct {
	Conn  net.Conn
	Since time.Time

	state atomic.Int32
	once  sync.Once
}

func (s *Session) State() ConnState {
	return ConnState(s.state.Load())
}

// Activate moves idle session to active, false if it was closed meanwhile
func (s *Session) Activate() bool {
	return s.state.CompareAndSwap(int32(StateIdle), int32(StateActive))
}

// Idle moves active session back to idle, false if it was closed meanwhile
func (s *Session) Idle() bool {
	return s.state.CompareAndSwap(int32(StateActive), int32(StateIdle))
}

// Close closes the connection once
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.state.Store(int32(StateClosed))
		err = s.Conn.Close()
	})
	return err
}

// Tracker keeps every open connection of a server
type Tracker struct {
	sessions *xsync.MapOf[net.Conn, *Session]
	wg       sync.WaitGroup
}

func NewTracker() *Tracker {
	return &Tracker{sessions: xsync.NewMapOf[net.Conn, *Session]()}
}

// Track registers c as active, caller must call Untrack when done with it
func (t *Tracker) Track(c net.Conn) *Session {
	s := &Session{Conn: c, Since: time.Now()}
	s.state.Store(int32(StateActive))
	t.wg.Add(1)
	t.sessions.Store(c, s)
	return s
}

func (t *Tracker) Untrack(s *Session) {
	if _, ok := t.sessions.LoadAndDelete(s.Conn); ok {
		t.wg.Done()
	}
}

// CloseIdle closes sessions waiting for a request, returns how many were closed
func (t *Tracker) CloseIdle() int {
	n := 0
	t.sessions.Range(func(_ net.Conn, s *Session) bool {
		if s.state.CompareAndSwap(int32(StateIdle), int32(StateClosed)) {
			s.Close()
			n++
		}
		return true
	})
	return n
}

// CloseAll closes every session whatever its state
func (t *Tracker) CloseAll() int {
	n := 0
	t.sessions.Range(func(_ net.Conn, s *Session) bool {
		s.Close()
		n++
		return true
	})
	return n
}

func (t *Tracker) Len() int {
	return t.sessions.Size()
}

// Wait blocks until all sessions are untracked or timeout passes,
// false on timeout. timeout < 0 waits forever
func (t *Tracker) Wait(timeout time.Duration) bool {
	return waitTimeout(&t.wg, timeout)
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if timeout < 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
