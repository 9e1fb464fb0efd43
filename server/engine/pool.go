// executors that run exchange handlers
package engine

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

var ErrPoolClosed = errors.New("engine: worker pool is closed")

// Executor runs tasks, running one on the calling goroutine is allowed
type Executor interface {
	Execute(task func()) error
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(task func()) error

func (f ExecutorFunc) Execute(task func()) error {
	return f(task)
}

// GoExecutor runs every task on its own goroutine and keeps count of them,
// so the owner can wait for running tasks before exit
type GoExecutor struct {
	wg sync.WaitGroup
}

func (e *GoExecutor) Execute(task func()) error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		task()
	}()
	return nil
}

// Wait blocks until running tasks finish or timeout passes, false on timeout.
// timeout < 0 waits forever
func (e *GoExecutor) Wait(timeout time.Duration) bool {
	return waitTimeout(&e.wg, timeout)
}

// WorkerPool is a fixed set of workers fed by a jobs channel.
// Execute blocks while the queue is full.
type WorkerPool struct {
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workers, workers <= 0 means one per CPU
func NewWorkerPool(workers, queue int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue < 0 {
		queue = 0
	}

	p := &WorkerPool{jobs: make(chan func(), queue)}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.jobs {
		p.run(task)
	}
}

// a panicking task must not kill the worker
func (p *WorkerPool) run(task func()) {
	defer func() { recover() }()
	task()
}

func (p *WorkerPool) Execute(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.jobs <- task
	return nil
}

// Close stops accepting tasks and waits for queued ones to finish
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
