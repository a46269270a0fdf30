package host

import (
	"fmt"
	"sync"
)

// runRequest is a unit of work to be executed on the worker goroutine.
type runRequest struct {
	fn   func() error
	done chan error
}

// worker serializes all module executions through a single goroutine.
// The host modules share one output writer and one input reader; runs
// must not interleave on them.
type worker struct {
	requests chan runRequest
	quit     chan struct{}
	stopOnce sync.Once
}

func newWorker() *worker {
	w := &worker{
		requests: make(chan runRequest, 16),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics raised by host functions.
func (w *worker) execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host panic: %v", r)
		}
	}()
	return fn()
}

// do submits fn and blocks until it completes.
func (w *worker) do(fn func() error) error {
	req := runRequest{fn: fn, done: make(chan error, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return ErrClosed
	}
	select {
	case err := <-req.done:
		return err
	case <-w.quit:
		return ErrClosed
	}
}

// stop ends the loop; later calls are no-ops.
func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
