package stateforward

import (
	"container/list"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// eventQueue is the interpreter's single-consumer, multi-producer FIFO. It
// is fed by Send (external producers) and by the Timer Service's
// time-elapsed events; the interpreter dispatches its own completion events
// directly rather than through the queue. Only the dispatch goroutine ever
// dequeues. Completion events that are pushed are given priority ahead of
// plain signals within a settle pass.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ready  *list.List // *Event, Signal/TimeElapsed/Change
	urgent *list.List // *Event, Completion
	closed bool

	// deferred holds events set aside by a Defer(name) declaration on the
	// currently active state, keyed by the name of the state that
	// deferred them so release can return exactly the right pool when
	// that state is exited.
	deferred *orderedmap.OrderedMap[VertexID, []*Event]
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		ready:    list.New(),
		urgent:   list.New(),
		deferred: orderedmap.New[VertexID, []*Event](),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues evt for ordinary FIFO delivery. Returns ErrCodeQueueClosed
// once the queue has been closed by Stop.
func (q *eventQueue) push(evt *Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return newQueueClosedError("Send")
	}
	if evt.Kind == Completion {
		q.urgent.PushBack(evt)
	} else {
		q.ready.PushBack(evt)
	}
	q.cond.Signal()
	return nil
}

// pop blocks until an event is available or the queue is closed. The
// second return is false only once closed and drained.
func (q *eventQueue) pop() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.urgent.Len() == 0 && q.ready.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.urgent.Len() > 0 {
		e := q.urgent.Remove(q.urgent.Front())
		return e.(*Event), true
	}
	if q.ready.Len() > 0 {
		e := q.ready.Remove(q.ready.Front())
		return e.(*Event), true
	}
	return nil, false
}

// close stops the queue from accepting further events, discards every
// ready and urgent event still queued, and wakes any blocked consumer.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.ready.Init()
	q.urgent.Init()
	q.cond.Broadcast()
}

// defer_ sets evt aside in the pool owned by state, to be released when
// that state is exited.
func (q *eventQueue) defer_(state VertexID, evt *Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pool, _ := q.deferred.Get(state)
	q.deferred.Set(state, append(pool, evt))
}

// release removes and returns, in original arrival order, every event
// deferred by state. Called when state is exited; the caller is expected
// to pass the result to releaseFront so the events are the next ones
// dispatched rather than appended behind whatever has queued up since.
func (q *eventQueue) release(state VertexID) []*Event {
	q.mu.Lock()
	pool, ok := q.deferred.Get(state)
	if ok {
		q.deferred.Delete(state)
	}
	q.mu.Unlock()
	return pool
}

// releaseFront re-queues events at the head of the ready list, preserving
// their relative (original arrival) order, rather than appending them to
// the tail the way an ordinary push would.
func (q *eventQueue) releaseFront(events []*Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(events) - 1; i >= 0; i-- {
		q.ready.PushFront(events[i])
	}
	q.cond.Signal()
}

// pending reports whether any event, ready or urgent, is queued without
// blocking. Used by the interpreter to decide whether a step pass has
// settled.
func (q *eventQueue) pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len() > 0 || q.urgent.Len() > 0
}
