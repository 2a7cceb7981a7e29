package stateforward

import "fmt"

// ErrorCode classifies the error kinds raised by the model, the interpreter
// and the runtime lifecycle, mirroring the taxonomy fluo used for its own
// StateError/TransitionError family.
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota

	// Model errors, raised at Freeze time.
	ErrCodeModelFrozen
	ErrCodeUnreachableState
	ErrCodeMissingInitial
	ErrCodeIncompleteChoice
	ErrCodeAmbiguousTransition

	// Dispatch errors, raised while a step is running.
	ErrCodeGuardImpure
	ErrCodeBehaviorFailed
	ErrCodeStepAborted

	// Lifecycle errors.
	ErrCodeIllegalState
	ErrCodeQueueClosed

	// Timer errors.
	ErrCodeTimerFault
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeModelFrozen:
		return "ModelFrozen"
	case ErrCodeUnreachableState:
		return "UnreachableState"
	case ErrCodeMissingInitial:
		return "MissingInitial"
	case ErrCodeIncompleteChoice:
		return "IncompleteChoice"
	case ErrCodeAmbiguousTransition:
		return "AmbiguousTransition"
	case ErrCodeGuardImpure:
		return "GuardImpure"
	case ErrCodeBehaviorFailed:
		return "BehaviorFailed"
	case ErrCodeStepAborted:
		return "StepAborted"
	case ErrCodeIllegalState:
		return "IllegalState"
	case ErrCodeQueueClosed:
		return "QueueClosed"
	case ErrCodeTimerFault:
		return "TimerFault"
	default:
		return "None"
	}
}

// ModelError represents a problem discovered while freezing the model graph.
// Model errors are fatal: the interpreter cannot start against a model that
// failed to freeze.
type ModelError struct {
	Code    ErrorCode
	Vertex  VertexID
	Message string
}

func (e *ModelError) Error() string {
	if e.Vertex != "" {
		return fmt.Sprintf("model error [%s] at %q: %s", e.Code, e.Vertex, e.Message)
	}
	return fmt.Sprintf("model error [%s]: %s", e.Code, e.Message)
}

func newModelError(code ErrorCode, vertex VertexID, format string, args ...any) *ModelError {
	return &ModelError{Code: code, Vertex: vertex, Message: fmt.Sprintf(format, args...)}
}

// DispatchError represents a failure encountered while running a single
// run-to-completion step: a guard that tried to suspend, or a behavior that
// returned an error or panicked. A failing behavior ends the step, but the
// exits and entries already applied in it are not rolled back, and
// ErrCodeStepAborted is never produced.
type DispatchError struct {
	Code    ErrorCode
	Event   string
	Vertex  VertexID
	Cause   error
	Message string
}

func (e *DispatchError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("dispatch error [%s] event=%q vertex=%q: %s", e.Code, e.Event, e.Vertex, msg)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

func newDispatchError(code ErrorCode, event string, vertex VertexID, cause error) *DispatchError {
	return &DispatchError{Code: code, Event: event, Vertex: vertex, Cause: cause}
}

// LifecycleError is raised when an operation is attempted from a machine
// lifecycle state that does not permit it (e.g. Send before Start) or when
// the event queue has already been closed by Stop.
type LifecycleError struct {
	Code      ErrorCode
	Operation string
	State     MachineState
	Message   string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lifecycle error [%s] during %s (machine state=%s): %s", e.Code, e.Operation, e.State, e.Message)
}

func newIllegalStateError(operation string, state MachineState) *LifecycleError {
	return &LifecycleError{
		Code:      ErrCodeIllegalState,
		Operation: operation,
		State:     state,
		Message:   fmt.Sprintf("%s is not permitted while the machine is %s", operation, state),
	}
}

func newQueueClosedError(operation string) *LifecycleError {
	return &LifecycleError{
		Code:      ErrCodeQueueClosed,
		Operation: operation,
		Message:   "event queue is closed",
	}
}

// TimerError describes a fault in the clock source itself. Nothing in this
// package constructs one: the Timer Service reports no faults, and no timer
// condition moves the machine toward Stopping.
type TimerError struct {
	Vertex VertexID
	Cause  error
}

func (e *TimerError) Error() string {
	return fmt.Sprintf("timer fault for state %q: %v", e.Vertex, e.Cause)
}

func (e *TimerError) Unwrap() error { return e.Cause }

// IsModelError reports whether err is a *ModelError.
func IsModelError(err error) bool { _, ok := err.(*ModelError); return ok }

// IsDispatchError reports whether err is a *DispatchError.
func IsDispatchError(err error) bool { _, ok := err.(*DispatchError); return ok }

// IsLifecycleError reports whether err is a *LifecycleError.
func IsLifecycleError(err error) bool { _, ok := err.(*LifecycleError); return ok }

// ErrorCodeOf returns the ErrorCode carried by a known error type, or
// ErrCodeNone if err does not originate from this package.
func ErrorCodeOf(err error) ErrorCode {
	switch e := err.(type) {
	case *ModelError:
		return e.Code
	case *DispatchError:
		return e.Code
	case *LifecycleError:
		return e.Code
	case *TimerError:
		return ErrCodeTimerFault
	default:
		return ErrCodeNone
	}
}
