package stateforward

import (
	"fmt"
	"time"
)

// guardWatchdog bounds how long a guard may run before it is treated as
// impure (ErrCodeGuardImpure). Guards must be synchronous and side-effect
// free; a guard that blocks this long is almost certainly waiting on
// something it shouldn't.
const guardWatchdog = 50 * time.Millisecond

// executor runs entry, exit, effect and guard behaviors on behalf of the
// interpreter's single dispatch goroutine, wrapping every call with panic
// recovery (grounded on the teacher's safeExecuteAction/safeEvaluateGuard)
// and, for guards, a watchdog that detects attempted suspension.
type executor struct {
	activities map[VertexID]*activityHandle
}

type activityHandle struct {
	cancel func()
	done   chan struct{}
}

func newExecutor() *executor {
	return &executor{activities: make(map[VertexID]*activityHandle)}
}

// runGuard evaluates guard with panic recovery and a watchdog. A guard
// that neither returns nor panics within guardWatchdog produces a
// DispatchError tagged ErrCodeGuardImpure; the goroutine running it is
// abandoned (Go provides no forced preemption of a genuinely blocked
// goroutine) but its result is never observed by the step.
func (x *executor) runGuard(guard GuardFunc, ctx *StepContext) (bool, error) {
	if guard == nil {
		return true, nil
	}
	type result struct {
		ok  bool
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var r result
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.err = fmt.Errorf("guard panic: %v", p)
				}
			}()
			r.ok = guard(ctx)
		}()
		ch <- r
	}()

	select {
	case r := <-ch:
		return r.ok, r.err
	case <-time.After(guardWatchdog):
		return false, newDispatchError(ErrCodeGuardImpure, ctx.Event().Name, ctx.vertex, nil)
	}
}

// runAction executes action with panic recovery, synchronously on the
// calling (dispatch) goroutine: entry/exit/effect behaviors are expected to
// run to completion within a single step.
func (x *executor) runAction(action ActionFunc, ctx *StepContext) (err error) {
	if action == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action panic: %v", p)
		}
	}()
	return action(ctx)
}

// startActivity launches vertex's do-activity in its own goroutine. Any
// error it returns, or panic it raises, is reported to the interpreter as
// a DispatchError rather than crashing the process.
func (x *executor) startActivity(interp *Interpreter, vertex VertexID, activity ActivityFunc) {
	if activity == nil {
		return
	}
	actx := newActivityContext(interp, vertex)
	handle := &activityHandle{cancel: actx.cancel, done: make(chan struct{})}
	x.activities[vertex] = handle

	go func() {
		defer close(handle.done)
		defer func() {
			if p := recover(); p != nil {
				interp.reportActivityFault(vertex, fmt.Errorf("activity panic: %v", p))
			}
		}()
		if err := activity(actx); err != nil && actx.Context.Err() == nil {
			interp.reportActivityFault(vertex, err)
		}
	}()
}

// stopActivity cancels vertex's do-activity, if any, and blocks until it
// has acknowledged cancellation. Called synchronously during exit so that
// by the time exit completes the activity is guaranteed to have stopped.
func (x *executor) stopActivity(vertex VertexID) {
	handle, ok := x.activities[vertex]
	if !ok {
		return
	}
	delete(x.activities, vertex)
	handle.cancel()
	<-handle.done
}

// stopAll cancels every running activity, used when the interpreter stops.
func (x *executor) stopAll() {
	for v := range x.activities {
		x.stopActivity(v)
	}
}
