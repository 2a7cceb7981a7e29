package stateforward

import (
	"context"
	"sync"
)

// StepContext is passed to every Guard and Action invoked during a single
// run-to-completion step. It exposes the triggering event and the source
// and target vertices of the transition currently being evaluated or
// executed, plus a scratch data map shared for the lifetime of the step.
type StepContext struct {
	context.Context

	interp *Interpreter
	event  *Event

	source VertexID
	target VertexID
	vertex VertexID // the vertex whose entry/exit/effect is running

	mu   sync.RWMutex
	data map[string]any
}

func newStepContext(parent context.Context, interp *Interpreter, event *Event) *StepContext {
	return &StepContext{
		Context: parent,
		interp:  interp,
		event:   event,
		data:    make(map[string]any),
	}
}

func (c *StepContext) forVertex(vertex VertexID) *StepContext {
	return &StepContext{
		Context: c.Context,
		interp:  c.interp,
		event:   c.event,
		source:  c.source,
		target:  c.target,
		vertex:  vertex,
		data:    c.data,
	}
}

func (c *StepContext) forTransition(source, target VertexID) *StepContext {
	n := c.forVertex("")
	n.source = source
	n.target = target
	return n
}

// Machine returns the interpreter driving this step.
func (c *StepContext) Machine() *Interpreter { return c.interp }

// Event returns the triggering event of the current step.
func (c *StepContext) Event() *Event { return c.event }

// Vertex returns the id of the state whose behavior is currently running.
func (c *StepContext) Vertex() VertexID { return c.vertex }

// Source returns the source vertex of the transition being executed.
func (c *StepContext) Source() VertexID { return c.source }

// Target returns the target vertex of the transition being executed.
func (c *StepContext) Target() VertexID { return c.target }

// Get retrieves a value previously stored with Set, scoped to the
// lifetime of the owning step.
func (c *StepContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores a value visible to every behavior invoked later in the same
// step.
func (c *StepContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// ActivityContext is passed to a running ActivityFunc. Its Done channel
// closes when the owning state is exited; a well-behaved activity selects
// on it and returns promptly.
type ActivityContext struct {
	context.Context

	interp *Interpreter
	vertex VertexID
	cancel context.CancelFunc
}

func newActivityContext(interp *Interpreter, vertex VertexID) *ActivityContext {
	ctx, cancel := context.WithCancel(context.Background())
	return &ActivityContext{Context: ctx, interp: interp, vertex: vertex, cancel: cancel}
}

// Vertex returns the id of the state that owns this activity.
func (a *ActivityContext) Vertex() VertexID { return a.vertex }

// Send enqueues an event from within a running activity, equivalent to
// calling Interpreter.Send from outside the machine.
func (a *ActivityContext) Send(evt *Event) error {
	return a.interp.Send(evt)
}
