// ABOUTME: Unbounded FIFO of push events for the event worker
// ABOUTME: Lets the reader goroutine hand off without ever blocking
package rpc

import (
	"encoding/json"
	"sync"
)

type event struct {
	name Event
	data json.RawMessage
}

type eventQueue struct {
	mu     sync.Mutex
	items  []event
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends e. It reports false once the queue is closed.
func (q *eventQueue) push(e event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return true
}

// close stops the worker. Queued events are dropped.
func (q *eventQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.items = nil
		close(q.signal)
	}
	q.mu.Unlock()
}

// run calls fn for every event in order until close. It closes done on exit.
func (q *eventQueue) run(fn func(event)) {
	defer close(q.done)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			if _, ok := <-q.signal; !ok {
				return
			}
			continue
		}
		e := q.items[0]
		q.items[0] = event{}
		q.items = q.items[1:]
		q.mu.Unlock()

		fn(e)
	}
}
