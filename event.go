package stateforward

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventKind discriminates how an Event was produced. Transitions match on
// Kind plus, for Signal events, the Name discriminator.
type EventKind int

const (
	// Signal is an ordinary externally raised event, matched by Name.
	Signal EventKind = iota
	// Completion is emitted by the interpreter when every region of an
	// active composite state has reached its Final vertex. Simple states
	// never emit one.
	Completion
	// TimeElapsed is emitted by the Timer Service when an after(Δ)
	// deadline for a still-active state expires.
	TimeElapsed
	// Change is emitted for data-driven transitions whose trigger is a
	// change in some observed condition rather than a discrete signal.
	Change
)

func (k EventKind) String() string {
	switch k {
	case Signal:
		return "signal"
	case Completion:
		return "completion"
	case TimeElapsed:
		return "after"
	case Change:
		return "change"
	default:
		return "unknown"
	}
}

var eventSeq uint64

// nextSeq hands out the monotonically increasing sequence numbers stored in
// Event.Seq. The queue orders events by arrival, not by Seq.
func nextSeq() uint64 { return atomic.AddUint64(&eventSeq, 1) }

// Event is a value tagged by Kind carrying an opaque Payload. Events are
// consumed exactly once; the Interpreter owns every Event between dequeue
// and the completion of its step.
type Event struct {
	ID        string
	Kind      EventKind
	Name      string
	Payload   any
	Seq       uint64
	Timestamp time.Time

	// Source is populated for TimeElapsed and Completion events: the id
	// of the state whose deadline fired, or the composite that completed.
	Source VertexID
	// Deadline is populated for TimeElapsed events.
	Deadline time.Time
}

// NewEvent creates a Signal event carrying payload.
func NewEvent(name string, payload any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Kind:      Signal,
		Name:      name,
		Payload:   payload,
		Seq:       nextSeq(),
		Timestamp: time.Now(),
	}
}

// newCompletionEvent builds the implicit completion event the interpreter
// emits for vertex, a composite whose regions have all completed.
func newCompletionEvent(vertex VertexID) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Kind:      Completion,
		Seq:       nextSeq(),
		Timestamp: time.Now(),
		Source:    vertex,
	}
}

// newTimeElapsedEvent builds the event the Timer Service enqueues when an
// after(Δ) deadline for source fires.
func newTimeElapsedEvent(source VertexID, deadline time.Time) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Kind:      TimeElapsed,
		Name:      "after",
		Seq:       nextSeq(),
		Timestamp: time.Now(),
		Source:    source,
		Deadline:  deadline,
	}
}

// matchesTrigger reports whether this event satisfies transition t's
// trigger discriminator, independent of guard evaluation.
func (e *Event) matchesTrigger(t *Transition) bool {
	switch t.Trigger {
	case Completion:
		return e.Kind == Completion && e.Source == t.Source
	case TimeElapsed:
		return e.Kind == TimeElapsed && e.Source == t.Source
	case Change:
		return e.Kind == Change && e.Name == t.EventName
	default:
		return e.Kind == Signal && e.Name == t.EventName
	}
}
