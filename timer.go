package stateforward

import (
	"sync"
	"time"
)

// after declares a time trigger owned by a state: the timer starts the
// instant the state is entered and is cancelled the instant it is exited,
// matching the spec's relative after(Δ) semantics.
type after struct {
	vertex VertexID
	delay  time.Duration
}

// timerService schedules and cancels the after(Δ) timers belonging to
// active states, grounded on the teacher's TimeoutState entry-goroutine
// pattern but generalized to many concurrently active timers instead of
// one per machine.
type timerService struct {
	mu      sync.Mutex
	timers  map[VertexID]*time.Timer
	cancels map[VertexID]chan struct{}
	push    func(*Event)
	now     func() time.Time
}

func newTimerService(push func(*Event)) *timerService {
	return &timerService{
		timers:  make(map[VertexID]*time.Timer),
		cancels: make(map[VertexID]chan struct{}),
		push:    push,
		now:     time.Now,
	}
}

// schedule starts a's timer. If the owning state already has one running
// (re-entry via history, say) the old one is cancelled first.
func (t *timerService) schedule(a after) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked(a.vertex)

	deadline := t.now().Add(a.delay)
	done := make(chan struct{})
	timer := time.NewTimer(a.delay)
	t.timers[a.vertex] = timer
	t.cancels[a.vertex] = done

	go func(vertex VertexID, timer *time.Timer, done chan struct{}, deadline time.Time) {
		select {
		case <-timer.C:
			t.push(newTimeElapsedEvent(vertex, deadline))
		case <-done:
			timer.Stop()
		}
	}(a.vertex, timer, done, deadline)
}

// cancel stops the timer owned by vertex, if any. Called when the vertex
// is exited.
func (t *timerService) cancel(vertex VertexID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked(vertex)
}

func (t *timerService) cancelLocked(vertex VertexID) {
	if done, ok := t.cancels[vertex]; ok {
		close(done)
		delete(t.cancels, vertex)
		delete(t.timers, vertex)
	}
}

// cancelAll stops every outstanding timer, used when the interpreter stops.
func (t *timerService) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for v := range t.cancels {
		t.cancelLocked(v)
	}
}
