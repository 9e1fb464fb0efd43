package engine

import (
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoExecutorWait(t *testing.T) {
	var e GoExecutor
	release := make(chan struct{})
	var ran atomic.Int32

	for range 4 {
		require.NoError(t, e.Execute(func() {
			<-release
			ran.Add(1)
		}))
	}
	assert.False(t, e.Wait(20*time.Millisecond), "tasks are still blocked")

	close(release)
	assert.True(t, e.Wait(time.Second))
	assert.EqualValues(t, 4, ran.Load())
}

func TestWorkerPool(t *testing.T) {
	p := NewWorkerPool(2, 4)

	var mu sync.Mutex
	var done []int
	for i := range 10 {
		require.NoError(t, p.Execute(func() {
			mu.Lock()
			done = append(done, i)
			mu.Unlock()
		}))
	}
	// panicking task doesn't kill a worker
	require.NoError(t, p.Execute(func() { panic("boom") }))

	p.Close()
	assert.Len(t, done, 10)
	assert.ErrorIs(t, p.Execute(func() {}), ErrPoolClosed)
	p.Close()
}

func TestWorkerPoolBoundsParallelism(t *testing.T) {
	p := NewWorkerPool(3, 0)
	defer p.Close()

	var cur, peak atomic.Int32
	var wg sync.WaitGroup
	for range 12 {
		wg.Add(1)
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			n := cur.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			cur.Add(-1)
		}))
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestTrackerCloseIdle(t *testing.T) {
	tr := NewTracker()
	a1, b1 := net.Pipe()
	a2, b2 := net.Pipe()
	defer b1.Close()
	defer b2.Close()

	idle := tr.Track(a1)
	active := tr.Track(a2)
	require.True(t, idle.Idle())
	assert.Equal(t, 2, tr.Len())

	assert.Equal(t, 1, tr.CloseIdle())
	assert.Equal(t, StateClosed, idle.State())
	assert.Equal(t, StateActive, active.State())
	assert.False(t, idle.Activate(), "closed session can't be activated")

	tr.Untrack(idle)
	assert.False(t, tr.Wait(10*time.Millisecond))

	assert.Equal(t, 1, tr.CloseAll())
	tr.Untrack(active)
	tr.Untrack(active)
	assert.True(t, tr.Wait(time.Second))
	assert.Zero(t, tr.Len())
}

func TestAcceptor(t *testing.T) {
	ln, err := Listen(ListenConfig{Addr: "127.0.0.1:0", MaxConnections: 8})
	require.NoError(t, err)

	tr := NewTracker()
	acc := NewAcceptor(ln, tr, func(s *Session) {
		io.Copy(s.Conn, s.Conn)
	}, nil)

	served := make(chan error, 1)
	go func() { served <- acc.Serve() }()

	c, err := net.Dial("tcp", acc.Addr().String())
	require.NoError(t, err)
	_, err = c.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.NoError(t, acc.Close())
	require.NoError(t, <-served)

	c.Close()
	assert.True(t, tr.Wait(time.Second))
}

func TestListenBacklog(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("backlog is not configurable")
	}
	ln, err := Listen(ListenConfig{Addr: "127.0.0.1:0", Backlog: 16})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()
	c, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	c.Close()
}

func BenchmarkGoExecutor(b *testing.B) {
	var e GoExecutor
	b.ReportAllocs()
	for b.Loop() {
		e.Execute(func() {})
	}
	e.Wait(-1)
}
