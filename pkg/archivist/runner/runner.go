// Package runner queues archive operations and runs them one at a time on a
// worker goroutine, fanning progress and completion events out to
// subscribers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("runner closed")

// Executor validates and runs operation requests. *engine.Engine
// implements it.
type Executor interface {
	Validate(req engine.Request) error
	Execute(ctx context.Context, req engine.Request, progress func(types.Progress)) engine.Result
}

// Runner executes submitted requests in FIFO order.
type Runner struct {
	exec Executor
	log  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []*Handle
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithContext sets the parent context of every operation. Cancelling it
// cancels running and queued operations.
func WithContext(ctx context.Context) Option {
	return func(r *Runner) {
		r.ctx = ctx
	}
}

// New starts a runner and its worker.
func New(exec Executor, opts ...Option) *Runner {
	r := &Runner{
		exec: exec,
		log:  logging.Get("runner"),
		ctx:  context.Background(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(r.ctx)
	go r.work()
	return r
}

// Submit validates req and queues it. Validation and format detection
// errors are returned here and nothing is queued.
func (r *Runner) Submit(req engine.Request) (*Handle, error) {
	if err := r.exec.Validate(req); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	h := newHandle(r.ctx, req)
	r.queue = append(r.queue, h)
	r.log.Debug("operation queued", "id", h.id, "request", req, "queued", len(r.queue))

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return h, nil
}

// Subscribe registers callbacks for h's events and returns the
// subscription id. Events already emitted are replayed first. Callbacks run
// on a goroutine owned by the subscription, one at a time and in order;
// onComplete is called last, once, unless the subscription is removed
// first. Either callback may be nil.
func (r *Runner) Subscribe(h *Handle, onProgress func(types.Progress), onComplete func(engine.Result)) string {
	return h.subscribe(func(ev Event, _ <-chan struct{}) bool {
		switch ev.Kind {
		case EventProgress:
			if onProgress != nil {
				onProgress(ev.Progress)
			}
		case EventComplete:
			if onComplete != nil {
				onComplete(ev.Result)
			}
		}
		return true
	}, nil)
}

// Unsubscribe stops delivery to subscription id. A callback already in
// flight finishes.
func (r *Runner) Unsubscribe(h *Handle, id string) {
	h.unsubscribe(id)
}

// Cancel asks h to stop. A running operation stops at the next item
// boundary; a queued one finishes as cancelled without running.
func (r *Runner) Cancel(h *Handle) {
	r.log.Debug("cancel requested", "id", h.id)
	h.cancel()
}

// Close cancels every operation, waits for the worker to drain the queue
// and rejects further submissions.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	select {
	case r.wake <- struct{}{}:
	default:
	}
	<-r.done
}

// Pending returns the number of queued operations not yet started.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Runner) next() (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, r.closed
	}
	h := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return h, false
}

func (r *Runner) work() {
	defer close(r.done)
	for {
		h, stop := r.next()
		if stop {
			return
		}
		if h == nil {
			<-r.wake
			continue
		}
		r.run(h)
	}
}

func (r *Runner) run(h *Handle) {
	if err := h.ctx.Err(); err != nil {
		r.log.Debug("operation cancelled before start", "id", h.id)
		h.finish(engine.Result{
			State: engine.StateFailed,
			Err:   fmt.Errorf("%w: %w", types.ErrCancelled, err),
		})
		return
	}

	h.setState(engine.StateRunning)
	res := r.exec.Execute(h.ctx, h.req, h.progress)
	h.finish(res)
}
