package stateforward

import (
	"context"
	"sync"
)

// MachineState is the lifecycle state of an Interpreter, distinct from the
// Configuration of the model it is running.
type MachineState int

const (
	Unstarted MachineState = iota
	Starting
	Running
	Stopping
	Stopped
)

func (s MachineState) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Interpreter runs a frozen Model to completion one run-to-completion step
// at a time, on a single dispatch goroutine. It is the public entry point
// of the package: construct one with New, Start it, Send it events, and
// Stop it when done.
type Interpreter struct {
	model  *Model
	cfg    *Configuration
	queue  *eventQueue
	timers *timerService
	exec   *executor
	sel    *selector
	obs    *ObserverManager

	mu    sync.RWMutex
	state MachineState

	settled   chan struct{}
	stopped   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	lastFault error

	// joinArrived tracks, per Join pseudostate, which of its declared
	// source vertices have arrived since the last time it fired.
	joinArrived map[VertexID]map[VertexID]bool

	// completionEmitted tracks which currently-complete composites have
	// already had their Completion event emitted, so a composite with no
	// outgoing completion transition doesn't re-fire one on every later
	// step (P4: exactly one completion event per completion). Cleared
	// the moment the composite is no longer complete, so a later,
	// genuinely new completion still fires.
	completionEmitted map[VertexID]bool
}

// New constructs an Interpreter for model, which must already be frozen
// (see ModelBuilder.Build).
func New(model *Model) *Interpreter {
	interp := &Interpreter{
		model:             model,
		cfg:               newConfiguration(model),
		exec:              newExecutor(),
		sel:               newSelector(model),
		obs:               newObserverManager(),
		state:             Unstarted,
		settled:           make(chan struct{}, 1),
		joinArrived:       make(map[VertexID]map[VertexID]bool),
		completionEmitted: make(map[VertexID]bool),
	}
	interp.queue = newEventQueue()
	interp.timers = newTimerService(func(evt *Event) { _ = interp.queue.push(evt) })
	return interp
}

// Observe registers observer to receive diagnostics for every transition,
// entry, exit and error this interpreter produces.
func (in *Interpreter) Observe(observer Observer) { in.obs.Add(observer) }

// Unobserve removes a previously registered observer.
func (in *Interpreter) Unobserve(observer Observer) { in.obs.Remove(observer) }

// Start brings the machine from Unstarted to Running: it drills into the
// model's initial configuration and launches the dispatch goroutine.
func (in *Interpreter) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.state != Unstarted {
		err := newIllegalStateError("Start", in.state)
		in.mu.Unlock()
		return err
	}
	in.state = Starting
	in.ctx, in.cancel = context.WithCancel(ctx)
	in.stopped = make(chan struct{})
	in.mu.Unlock()

	step := newStepContext(in.ctx, in, nil)
	if err := in.enterInitial(step); err != nil {
		in.mu.Lock()
		in.state = Stopped
		in.mu.Unlock()
		return err
	}

	in.mu.Lock()
	in.state = Running
	in.mu.Unlock()
	in.obs.notifyStarted(in)

	go in.run()
	return nil
}

// Stop drains no further events, cancels every timer and activity, and
// transitions the machine to Stopped. It blocks until the dispatch
// goroutine has exited.
func (in *Interpreter) Stop() error {
	in.mu.Lock()
	if in.state != Running {
		err := newIllegalStateError("Stop", in.state)
		in.mu.Unlock()
		return err
	}
	in.state = Stopping
	in.mu.Unlock()

	in.queue.close()
	<-in.stopped

	in.timers.cancelAll()
	in.exec.stopAll()
	in.cancel()

	in.mu.Lock()
	in.state = Stopped
	in.mu.Unlock()
	in.obs.notifyStopped(in)
	return nil
}

// Send enqueues a Signal event for delivery on the next available step.
// It never blocks the caller on machine processing.
func (in *Interpreter) Send(evt *Event) error {
	in.mu.RLock()
	st := in.state
	in.mu.RUnlock()
	if st != Running {
		return newIllegalStateError("Send", st)
	}
	return in.queue.push(evt)
}

// AwaitSettled blocks until the event queue has drained and every pending
// completion cascade has run, or ctx is done first.
func (in *Interpreter) AwaitSettled(ctx context.Context) error {
	for {
		if !in.queue.pending() {
			return nil
		}
		select {
		case <-in.settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the current active-leaf configuration as a sorted
// snapshot, safe to call from any goroutine.
func (in *Interpreter) State() []VertexID {
	var out []VertexID
	for _, id := range in.cfg.snapshot() {
		if v, ok := in.model.Vertex(id); ok && v.IsComposite() {
			continue
		}
		out = append(out, id)
	}
	return out
}

// IsActive reports whether vertex is currently active.
func (in *Interpreter) IsActive(vertex VertexID) bool { return in.cfg.IsActive(vertex) }

// LifecycleState returns the interpreter's current MachineState.
func (in *Interpreter) LifecycleState() MachineState {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.state
}

func (in *Interpreter) reportActivityFault(vertex VertexID, err error) {
	de := newDispatchError(ErrCodeBehaviorFailed, "", vertex, err)
	in.obs.notifyError(in, de)
}

// run is the dispatch goroutine's body: pop an event, run one RTC step,
// repeat until the queue is closed.
func (in *Interpreter) run() {
	defer close(in.stopped)
	for {
		evt, ok := in.queue.pop()
		if !ok {
			return
		}
		in.step(evt)
		select {
		case in.settled <- struct{}{}:
		default:
		}
	}
}

// enterInitial drills the model's root region(s) down to their stable
// leaf configuration, per the Initial pseudostate of each region
// encountered, recursively expanding composite targets.
func (in *Interpreter) enterInitial(step *StepContext) error {
	for _, r := range in.model.Regions(in.model.Root()) {
		if err := in.enterRegion(step, r, r.Initial); err != nil {
			return err
		}
	}
	return nil
}

// enterRegion activates target within region r, running entry actions and
// recursively drilling into composites/regions/pseudostates as needed.
func (in *Interpreter) enterRegion(step *StepContext, r *Region, target VertexID) error {
	return in.enterVertex(step, target)
}

// enterVertex performs the entry behavior for vertex and, if it is itself
// a pseudostate or composite, follows through to a stable leaf.
func (in *Interpreter) enterVertex(step *StepContext, vertex VertexID) error {
	v, ok := in.model.Vertex(vertex)
	if !ok {
		return newModelError(ErrCodeUnreachableState, vertex, "vertex not found")
	}

	switch v.Kind {
	case KindChoice:
		return in.expandChoice(step, v)
	case KindJunction:
		return in.expandJunction(step, v)
	case KindFork:
		return in.expandFork(step, v)
	case KindShallowHistory, KindDeepHistory:
		return in.expandHistory(step, v)
	case KindTerminate:
		in.obs.notifyTerminate(in, vertex)
		return nil
	}

	if err := in.exec.runAction(v.Entry, step.forVertex(vertex)); err != nil {
		return newDispatchError(ErrCodeBehaviorFailed, "", vertex, err)
	}
	in.cfg.activate(vertex)
	in.obs.notifyEnter(in, vertex)
	for _, a := range v.Timers {
		in.timers.schedule(a)
	}
	if v.Activity != nil {
		in.exec.startActivity(in, vertex, v.Activity)
	}

	if v.IsComposite() {
		for _, r := range in.model.Regions(vertex) {
			if err := in.enterRegion(step, r, r.Initial); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func (in *Interpreter) expandChoice(step *StepContext, v *Vertex) error {
	for _, b := range v.Branches {
		if b.Else {
			continue
		}
		ok, err := in.exec.runGuard(b.Guard, step.forVertex(v.ID))
		if err != nil {
			return err
		}
		if ok {
			if err := in.exec.runAction(b.Effect, step.forVertex(v.ID)); err != nil {
				return err
			}
			return in.enterVertex(step, b.Target)
		}
	}
	for _, b := range v.Branches {
		if b.Else {
			if err := in.exec.runAction(b.Effect, step.forVertex(v.ID)); err != nil {
				return err
			}
			return in.enterVertex(step, b.Target)
		}
	}
	return newDispatchError(ErrCodeIncompleteChoice, "", v.ID, nil)
}

// expandJunction follows a junction's guarded branches in declaration
// order, evaluating the guards when the junction is traversed, and falls
// back to its Else branch, running the taken branch's Effect just as
// expandChoice does.
func (in *Interpreter) expandJunction(step *StepContext, v *Vertex) error {
	for _, b := range v.Branches {
		if b.Else {
			continue
		}
		ok, err := in.exec.runGuard(b.Guard, step.forVertex(v.ID))
		if err != nil {
			return err
		}
		if ok {
			if err := in.exec.runAction(b.Effect, step.forVertex(v.ID)); err != nil {
				return err
			}
			return in.enterVertex(step, b.Target)
		}
	}
	for _, b := range v.Branches {
		if b.Else {
			if err := in.exec.runAction(b.Effect, step.forVertex(v.ID)); err != nil {
				return err
			}
			return in.enterVertex(step, b.Target)
		}
	}
	return newDispatchError(ErrCodeIncompleteChoice, "", v.ID, nil)
}

func (in *Interpreter) expandFork(step *StepContext, v *Vertex) error {
	for _, target := range v.ForkTargets {
		if err := in.enterVertex(step, target); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) expandHistory(step *StepContext, v *Vertex) error {
	r, ok := in.model.regionOf(v.ID)
	if !ok {
		return newModelError(ErrCodeUnreachableState, v.ID, "history pseudostate outside a region")
	}
	if last, ok := in.cfg.historyOf(r.ID); ok {
		return in.enterVertex(step, last)
	}
	target := v.HistoryDefault
	if target == "" {
		target = r.Initial
	}
	return in.enterVertex(step, target)
}

// exitVertex runs vertex's exit behavior, stops its activity and timers,
// and clears it from the configuration. recordHistory should be true
// whenever the exit is due to leaving the owning region altogether (so a
// later History re-entry can recall it).
func (in *Interpreter) exitVertex(step *StepContext, vertex VertexID, recordHistory bool) error {
	v, ok := in.model.Vertex(vertex)
	if !ok {
		return nil
	}
	if v.IsComposite() {
		for _, r := range in.model.Regions(vertex) {
			if leaf, ok := in.cfg.leaf[r.ID]; ok {
				if err := in.exitVertex(step, leaf, recordHistory); err != nil {
					return err
				}
			}
		}
	}
	for _, a := range v.Timers {
		in.timers.cancel(a.vertex)
	}
	in.exec.stopActivity(vertex)
	if err := in.exec.runAction(v.Exit, step.forVertex(vertex)); err != nil {
		return newDispatchError(ErrCodeBehaviorFailed, "", vertex, err)
	}
	in.cfg.deactivate(vertex, recordHistory)
	delete(in.completionEmitted, vertex)
	in.queue.releaseFront(in.queue.release(vertex))
	in.obs.notifyExit(in, vertex)
	return nil
}

// step runs one complete run-to-completion pass for evt: find enabled
// transitions across every active leaf, resolve conflicts, apply the exit
// set, run effects, apply the entry set, then check for newly-reached
// completion and feed a Completion event back in before returning,
// matching the spec's eleven-step algorithm.
func (in *Interpreter) step(evt *Event) {
	step := newStepContext(in.ctx, in, evt)

	var all []candidate
	for _, leaf := range in.cfg.snapshot() {
		found, err := in.sel.enabledFor(in.cfg, leaf, evt, in.exec, step)
		if err != nil {
			in.obs.notifyError(in, err)
			continue
		}
		all = append(all, found...)
	}

	winners := in.sel.resolve(all)
	if len(winners) == 0 {
		if evt.Kind == Signal {
			if deferrer, ok := in.deferringState(evt); ok {
				in.queue.defer_(deferrer, evt)
			} else {
				in.obs.notifyDiscarded(in, evt)
			}
		}
		return
	}

	for _, t := range winners {
		if err := in.applyTransition(step, t); err != nil {
			in.obs.notifyError(in, err)
			return
		}
	}

	in.checkCompletions(step)
}

// applyTransition performs the exit set, the effect, and the entry set of
// a single winning transition.
func (in *Interpreter) applyTransition(step *StepContext, t *Transition) error {
	tctx := step.forTransition(t.Source, t.Target)

	if t.Kind == Internal {
		if err := in.exec.runAction(t.Effect, tctx); err != nil {
			return newDispatchError(ErrCodeBehaviorFailed, t.EventName, t.Source, err)
		}
		in.obs.notifyTransition(in, t.Source, t.Target, step.event)
		return nil
	}

	activeLeaf := t.Source
	for _, l := range in.cfg.snapshot() {
		if l == t.Source || in.model.IsDescendant(l, t.Source) {
			activeLeaf = l
			break
		}
	}

	for _, v := range in.sel.exitSet(in.cfg, t, activeLeaf) {
		if err := in.exitVertex(step, v, true); err != nil {
			return err
		}
	}

	if err := in.exec.runAction(t.Effect, tctx); err != nil {
		return newDispatchError(ErrCodeBehaviorFailed, t.EventName, t.Source, err)
	}

	path := in.sel.entryPath(t)
	if len(path) == 0 && t.Target != "" {
		path = []VertexID{t.Target}
	}
	for i, v := range path {
		if vtx, ok := in.model.Vertex(v); ok && vtx.Kind == KindJoin && i == len(path)-1 {
			if err := in.arriveAtJoin(step, t.Source, vtx); err != nil {
				return err
			}
			continue
		}
		if err := in.enterVertex(step, v); err != nil {
			return err
		}
	}
	in.obs.notifyTransition(in, t.Source, t.Target, step.event)
	return nil
}

// arriveAtJoin records that source has reached join v, and if that
// completes one of join's declared source combinations, clears the
// bookkeeping and enters JoinTarget. A Join never activates partway: the
// sources that reach it first simply wait, inactive, until the rest
// arrive.
func (in *Interpreter) arriveAtJoin(step *StepContext, source VertexID, v *Vertex) error {
	if in.joinArrived[v.ID] == nil {
		in.joinArrived[v.ID] = make(map[VertexID]bool)
	}
	in.joinArrived[v.ID][source] = true

	for _, combo := range v.JoinSources {
		satisfied := true
		for _, want := range combo {
			if !in.joinArrived[v.ID][want] {
				satisfied = false
				break
			}
		}
		if satisfied {
			delete(in.joinArrived, v.ID)
			return in.enterVertex(step, v.JoinTarget)
		}
	}
	return nil
}

// deferringState reports whether some active vertex declares evt.Name in
// its Defer list, and if so which one owns the pool it should join.
// Ancestors are checked innermost-first so a nested state's own Defer
// takes precedence over an enclosing composite's.
func (in *Interpreter) deferringState(evt *Event) (VertexID, bool) {
	for _, leaf := range in.cfg.snapshot() {
		chain := append(in.model.Ancestors(leaf), leaf)
		for i := len(chain) - 1; i >= 0; i-- {
			v, ok := in.model.Vertex(chain[i])
			if !ok {
				continue
			}
			for _, name := range v.Defer {
				if name == evt.Name {
					return v.ID, true
				}
			}
		}
	}
	return "", false
}

// checkCompletions walks every active composite and, among those whose
// regions have all reached Final but have not yet had a Completion event
// emitted for this completion, picks the innermost (deepest) one and fires
// it (invariant I4). A composite that stays complete with no transition to
// consume its Completion event is only ever reported once: completionEmitted
// is cleared the moment the composite stops being complete, so a later,
// genuinely new completion still fires exactly once (P4).
func (in *Interpreter) checkCompletions(step *StepContext) {
	var deepest VertexID
	deepestDepth := -1
	seen := make(map[VertexID]bool)

	for _, leaf := range in.cfg.snapshot() {
		for _, anc := range append(in.model.Ancestors(leaf), leaf) {
			if seen[anc] {
				continue
			}
			seen[anc] = true
			v, ok := in.model.Vertex(anc)
			if !ok || !v.IsComposite() {
				continue
			}
			if !in.cfg.compositeComplete(anc) {
				delete(in.completionEmitted, anc)
				continue
			}
			if in.completionEmitted[anc] {
				continue
			}
			if d := in.model.depth(anc); d > deepestDepth {
				deepestDepth = d
				deepest = anc
			}
		}
	}

	if deepest == "" {
		return
	}
	in.completionEmitted[deepest] = true
	evt := newCompletionEvent(deepest)
	in.obs.notifyCompletion(in, deepest)
	in.step(evt)
}
