package stateforward

// GuardFunc evaluates whether a transition may be taken. Guards must be
// synchronous and side-effect free: the Behavior Executor detects a guard
// that blocks past its watchdog window and reports ErrCodeGuardImpure
// rather than stall a run-to-completion step indefinitely.
type GuardFunc func(ctx *StepContext) bool

// ActionFunc performs entry, exit or transition-effect work. It runs to
// completion on the interpreter's dispatch goroutine; it may return an
// error, which aborts the remainder of the current step.
type ActionFunc func(ctx *StepContext) error

// ActivityFunc is a long-running do-activity associated with a state. It is
// started in its own goroutine on entry and is cancelled (via ctx.Done())
// on exit; the Behavior Executor waits for it to acknowledge cancellation
// before the exit is considered complete.
type ActivityFunc func(ctx *ActivityContext) error

// TransitionKind distinguishes how a transition's exit/entry set is
// computed (spec open question, resolved per dragomit-hsm's
// internal/local transition split).
type TransitionKind int

const (
	// External transitions exit and re-enter every vertex between the
	// true LCA of source and target, inclusive of the LCA's region
	// bookkeeping when source equals target.
	External TransitionKind = iota
	// Local transitions do not exit the composite common to source and
	// target, only the descendants strictly inside it. Valid only when
	// target is a (possibly indirect) descendant or ancestor of source.
	Local
	// Internal transitions never exit or re-enter any vertex; they run
	// only their effect, with no Target.
	Internal
)

func (k TransitionKind) String() string {
	switch k {
	case External:
		return "external"
	case Local:
		return "local"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Transition is a single declared edge of the model graph. Source is
// always set; Target is empty for Internal transitions and for Terminate
// pseudostate edges.
type Transition struct {
	Source VertexID
	Target VertexID
	Kind   TransitionKind

	// Trigger discriminates which EventKind satisfies this transition.
	// For Trigger == Signal, EventName must also match.
	Trigger  EventKind
	EventName string

	Guard  GuardFunc
	Effect ActionFunc

	// declOrder breaks ties between transitions declared on the same
	// source with no other priority difference (spec's declaration-order
	// tiebreak).
	declOrder uint64
}

func newTransition(source, target VertexID, kind TransitionKind, trigger EventKind, eventName string) *Transition {
	return &Transition{
		Source:    source,
		Target:    target,
		Kind:      kind,
		Trigger:   trigger,
		EventName: eventName,
		declOrder: nextDeclSeq(),
	}
}
