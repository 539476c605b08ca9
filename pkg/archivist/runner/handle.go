package runner

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// EventKind distinguishes operation events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventComplete
)

// Event is one progress tick or the final result of an operation.
type Event struct {
	Kind     EventKind
	Progress types.Progress
	Result   engine.Result
}

// Handle tracks one submitted operation. Its events are kept in an
// append-only log so that every subscriber sees all of them in order,
// however late it subscribes.
type Handle struct {
	id  string
	req engine.Request

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	cond   *sync.Cond
	state  engine.State
	events []Event
	result engine.Result
	subs   map[string]*subscription
	done   chan struct{}
}

type subscription struct {
	stopped bool
	stop    chan struct{}
}

func newHandle(parent context.Context, req engine.Request) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		id:     uuid.New().String(),
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		state:  engine.StateIdle,
		subs:   make(map[string]*subscription),
		done:   make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// ID returns the operation id.
func (h *Handle) ID() string { return h.id }

// Request returns the submitted request.
func (h *Handle) Request() engine.Request { return h.req }

// State returns the current lifecycle state.
func (h *Handle) State() engine.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the operation reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the operation ends and returns its result.
func (h *Handle) Wait() engine.Result {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Events returns a channel carrying every event of the operation in order,
// and a stop func that ends the subscription early. The channel is closed
// after the completion event or once stop is called. A consumer that quits
// reading before completion must call stop.
func (h *Handle) Events() (<-chan Event, func()) {
	ch := make(chan Event)
	id := h.subscribe(func(ev Event, stop <-chan struct{}) bool {
		select {
		case ch <- ev:
			return true
		case <-stop:
			return false
		}
	}, func() { close(ch) })
	return ch, func() { h.unsubscribe(id) }
}

func (h *Handle) setState(s engine.State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) progress(p types.Progress) {
	h.append(Event{Kind: EventProgress, Progress: p})
}

func (h *Handle) finish(res engine.Result) {
	h.mu.Lock()
	h.state = res.State
	h.result = res
	h.events = append(h.events, Event{Kind: EventComplete, Result: res})
	h.cond.Broadcast()
	h.mu.Unlock()

	h.cancel()
	close(h.done)
}

func (h *Handle) append(ev Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.cond.Broadcast()
	h.mu.Unlock()
}

// subscribe starts a pump goroutine feeding deliver from the event log.
// The pump ends after the completion event, on unsubscribe, or when
// deliver returns false. exited, when set, runs as the pump returns.
func (h *Handle) subscribe(deliver func(ev Event, stop <-chan struct{}) bool, exited func()) string {
	id := uuid.New().String()
	sub := &subscription{stop: make(chan struct{})}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		defer func() {
			h.unsubscribe(id)
			if exited != nil {
				exited()
			}
		}()
		for i := 0; ; i++ {
			h.mu.Lock()
			for i >= len(h.events) && !sub.stopped {
				h.cond.Wait()
			}
			if sub.stopped {
				h.mu.Unlock()
				return
			}
			ev := h.events[i]
			h.mu.Unlock()

			if !deliver(ev, sub.stop) || ev.Kind == EventComplete {
				return
			}
		}
	}()
	return id
}

func (h *Handle) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		sub.stopped = true
		close(sub.stop)
		delete(h.subs, id)
		h.cond.Broadcast()
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Handle) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
