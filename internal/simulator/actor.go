package simulator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jason-s-yu/roomsim/internal/models"
)

// actor runs queued tasks one at a time on its own goroutine.
type actor struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

func newActor(queue int) *actor {
	a := &actor{
		tasks: make(chan func(), queue),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *actor) run() {
	for {
		select {
		case fn := <-a.tasks:
			fn()
		case <-a.done:
			return
		}
	}
}

// Task claim states shared by do and the queued task.
const (
	taskPending int32 = iota
	taskStarted
	taskAbandoned
)

// do queues fn and waits for its result. A caller that gives up while fn is
// still queued gets ctx.Err() and fn never runs; once fn has started it runs
// to completion and its result is returned.
func (a *actor) do(ctx context.Context, fn func() error) error {
	var state atomic.Int32
	res := make(chan error, 1)
	task := func() {
		if !state.CompareAndSwap(taskPending, taskStarted) {
			return
		}
		res <- fn()
	}

	select {
	case a.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return models.ErrNotJoined
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			return ctx.Err()
		}
	case <-a.done:
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			return models.ErrNotJoined
		}
	}
	// fn already started
	return <-res
}

// post queues fn without waiting for it. It must not be called from the
// actor's own goroutine.
func (a *actor) post(fn func()) {
	select {
	case a.tasks <- fn:
	case <-a.done:
	}
}

func (a *actor) stop() {
	a.stopOnce.Do(func() { close(a.done) })
}
