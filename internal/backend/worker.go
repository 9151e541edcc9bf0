// Package backend owns all communication with the document store. Every
// network interaction runs on one dedicated worker goroutine: work started
// there is always polled to completion there, which the boundary the driver
// sits behind requires. Public calls post a closure and block until it
// completes, so callers see fully synchronous behavior.
package backend

import (
	"errors"
	"sync"
)

// ErrWorkerClosed is returned for work posted after the worker shut down.
var ErrWorkerClosed = errors.New("backend worker closed")

// Worker is the single cooperative execution context. All mongo client and
// cursor operations of one connection funnel through its loop.
type Worker struct {
	tasks chan func()
	quit  chan struct{}
	once  sync.Once
}

// NewWorker starts the worker loop.
func NewWorker() *Worker {
	w := &Worker{
		tasks: make(chan func()),
		quit:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case fn := <-w.tasks:
			fn()
		case <-w.quit:
			return
		}
	}
}

// Do runs fn on the worker goroutine and blocks the caller until it
// finishes. The blocking handoff is the only caller-visible synchronization;
// there is no cross-thread cancellation of in-flight work.
func (w *Worker) Do(fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case w.tasks <- wrapped:
	case <-w.quit:
		return ErrWorkerClosed
	}
	<-done
	return nil
}

// Close stops the worker. Safe to call more than once; work already running
// finishes first because Close is itself posted behind it.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.quit) })
}
