package stateforward

import (
	"fmt"
	"time"
)

// ModelBuilder assembles a Model graph one declaration at a time and
// freezes it into an immutable, validated form with Build. Vertices keep
// their declaration order (the model's ordered vertex map), and every
// transition is stamped with a declaration sequence number, so transitions
// keep a stable tiebreak order.
type ModelBuilder struct {
	model      *Model
	regionSeq  int
	errs       []error
	rootRegion RegionID
}

// NewModelBuilder starts a new builder with an implicit root composite
// state and its single default top-level region.
func NewModelBuilder() *ModelBuilder {
	b := &ModelBuilder{model: newModel()}
	b.model.root = "__root__"
	b.model.vertices.Set(b.model.root, &Vertex{ID: b.model.root, Kind: KindComposite})
	b.rootRegion = b.newRegionID(b.model.root)
	b.model.regions[b.rootRegion] = &Region{ID: b.rootRegion, Owner: b.model.root}
	root, _ := b.model.vertices.Get(b.model.root)
	root.Regions = []RegionID{b.rootRegion}
	return b
}

func (b *ModelBuilder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

func (b *ModelBuilder) newRegionID(owner VertexID) RegionID {
	b.regionSeq++
	return RegionID(fmt.Sprintf("%s#%d", owner, b.regionSeq))
}

// RootRegion returns the id of the implicit top-level region, the region
// to pass to Initial when declaring the machine's starting state.
func (b *ModelBuilder) RootRegion() RegionID { return b.rootRegion }

// Root returns the id of the implicit root composite state, the Parent of
// every state declared in the root region.
func (b *ModelBuilder) Root() VertexID { return b.model.root }

// Region declares a new region owned by composite owner, for orthogonal
// states: call Region once per concurrent area. owner must already exist
// and will be upgraded to KindComposite if it was something else.
func (b *ModelBuilder) Region(owner VertexID) RegionID {
	v, ok := b.model.vertices.Get(owner)
	if !ok {
		b.fail("Region: unknown owner %q", owner)
		return ""
	}
	v.Kind = KindComposite
	id := b.newRegionID(owner)
	b.model.regions[id] = &Region{ID: id, Owner: owner}
	v.Regions = append(v.Regions, id)
	return id
}

// Initial sets the vertex entered whenever region r is entered by default,
// i.e. not through an explicit transition target or a history
// pseudostate. target may itself be a pseudostate
// (Choice, Junction, Fork) for a dynamic initial transition.
func (b *ModelBuilder) Initial(r RegionID, target VertexID) *ModelBuilder {
	region, ok := b.model.regions[r]
	if !ok {
		b.fail("Initial: unknown region %q", r)
		return b
	}
	region.Initial = target
	return b
}

// addVertex creates vertex id as a member of region: its Parent is the
// region's owner, and it is appended to the region's States. Every
// vertex-declaring method takes a RegionID rather than a parent vertex id
// so that orthogonal composites (which own more than one region) are
// never ambiguous about which concurrent area a sub-state belongs to.
func (b *ModelBuilder) addVertex(id VertexID, region RegionID, kind VertexKind) *Vertex {
	r, ok := b.model.regions[region]
	if !ok {
		b.fail("%s: unknown region %q", kind, region)
		r = &Region{ID: region}
	}
	v := &Vertex{ID: id, Kind: kind, Parent: r.Owner}
	b.model.vertices.Set(id, v)
	if r.Owner != "" {
		if pv, ok := b.model.vertices.Get(r.Owner); ok {
			pv.Children = append(pv.Children, id)
		}
	}
	r.States = append(r.States, id)
	return v
}

// State declares a leaf state as a member of region. Returns a builder for
// attaching entry/exit/activity behavior and timers.
func (b *ModelBuilder) State(id VertexID, region RegionID) *VertexBuilder {
	return &VertexBuilder{b: b, v: b.addVertex(id, region, KindLeaf)}
}

// Composite declares a composite (possibly orthogonal) state as a member
// of region. Call b.Region(id) one or more times against the returned id
// to give it its own sub-regions before declaring its sub-states.
func (b *ModelBuilder) Composite(id VertexID, region RegionID) *VertexBuilder {
	return &VertexBuilder{b: b, v: b.addVertex(id, region, KindComposite)}
}

// Final declares a final vertex within region, reached when that region
// has nothing left to do (drives invariant I4's completion check).
func (b *ModelBuilder) Final(id VertexID, region RegionID) *VertexBuilder {
	return &VertexBuilder{b: b, v: b.addVertex(id, region, KindFinal)}
}

// Choice declares a Choice pseudostate: branches are evaluated in
// declaration order against current state at the moment the pseudostate is
// reached (dynamic), and the first passing guard wins.
func (b *ModelBuilder) Choice(id VertexID, region RegionID) *ChoiceBuilder {
	return &ChoiceBuilder{b: b, v: b.addVertex(id, region, KindChoice)}
}

// Junction declares a Junction pseudostate: like Choice, but intended for
// guards over static configuration decided once per model rather than
// per-traversal dynamic state; expansion logic is identical.
func (b *ModelBuilder) Junction(id VertexID, region RegionID) *ChoiceBuilder {
	return &ChoiceBuilder{b: b, v: b.addVertex(id, region, KindJunction)}
}

// Fork declares a Fork pseudostate that atomically activates every target
// in targets, one per orthogonal region of their common owning composite.
func (b *ModelBuilder) Fork(id VertexID, region RegionID, targets ...VertexID) *VertexBuilder {
	v := b.addVertex(id, region, KindFork)
	v.ForkTargets = targets
	return &VertexBuilder{b: b, v: v}
}

// Join declares a Join pseudostate reached once every source in one of
// sources' combinations has arrived; target is entered once satisfied.
func (b *ModelBuilder) Join(id VertexID, region RegionID, target VertexID, sources ...[]VertexID) *VertexBuilder {
	v := b.addVertex(id, region, KindJoin)
	v.JoinTarget = target
	v.JoinSources = sources
	return &VertexBuilder{b: b, v: v}
}

// ShallowHistory declares a shallow-history pseudostate within region:
// re-entering the region resumes its last active direct child, falling
// back to fallback the first time the region is entered.
func (b *ModelBuilder) ShallowHistory(id VertexID, region RegionID, fallback VertexID) *VertexBuilder {
	v := b.addVertex(id, region, KindShallowHistory)
	v.HistoryDefault = fallback
	return &VertexBuilder{b: b, v: v}
}

// DeepHistory declares a deep-history pseudostate within region. The
// interpreter restores it exactly like ShallowHistory: it re-enters the
// region's last active direct child, and any regions nested inside that
// child are entered through their Initial, not their recorded history.
func (b *ModelBuilder) DeepHistory(id VertexID, region RegionID, fallback VertexID) *VertexBuilder {
	v := b.addVertex(id, region, KindDeepHistory)
	v.HistoryDefault = fallback
	return &VertexBuilder{b: b, v: v}
}

// Terminate declares a Terminate pseudostate: reaching it ends the
// enclosing region's life with no further behavior, without signaling
// completion to its owning composite.
func (b *ModelBuilder) Terminate(id VertexID, region RegionID) *VertexBuilder {
	return &VertexBuilder{b: b, v: b.addVertex(id, region, KindTerminate)}
}

// VertexBuilder attaches behavior to a just-declared vertex.
type VertexBuilder struct {
	b *ModelBuilder
	v *Vertex
}

// ID returns the id of the vertex under construction, for convenient
// chaining into Transition/Region calls.
func (vb *VertexBuilder) ID() VertexID { return vb.v.ID }

func (vb *VertexBuilder) OnEntry(action ActionFunc) *VertexBuilder { vb.v.Entry = action; return vb }
func (vb *VertexBuilder) OnExit(action ActionFunc) *VertexBuilder  { vb.v.Exit = action; return vb }
func (vb *VertexBuilder) Activity(activity ActivityFunc) *VertexBuilder {
	vb.v.Activity = activity
	return vb
}

// After schedules a relative time trigger, starting the instant this
// vertex is entered; pair with a Transition whose trigger is TimeElapsed
// and Source is this vertex's id.
func (vb *VertexBuilder) After(delay time.Duration) *VertexBuilder {
	vb.v.Timers = append(vb.v.Timers, after{vertex: vb.v.ID, delay: delay})
	return vb
}

// Defer marks event names that should be set aside rather than discarded
// while this vertex is active, released in arrival order on exit.
func (vb *VertexBuilder) Defer(eventNames ...string) *VertexBuilder {
	vb.v.Defer = append(vb.v.Defer, eventNames...)
	return vb
}

// ChoiceBuilder accumulates the guarded branches of a Choice or Junction
// pseudostate.
type ChoiceBuilder struct {
	b *ModelBuilder
	v *Vertex
}

func (cb *ChoiceBuilder) ID() VertexID { return cb.v.ID }

// Branch adds a guarded edge, tried in declaration order.
func (cb *ChoiceBuilder) Branch(guard GuardFunc, target VertexID, effect ActionFunc) *ChoiceBuilder {
	cb.v.Branches = append(cb.v.Branches, ChoiceBranch{Guard: guard, Target: target, Effect: effect})
	return cb
}

// Else adds the fallback branch, taken when no prior Branch guard passes.
// Build rejects a Choice/Junction whose last-declared branch is not an
// Else with ErrCodeIncompleteChoice.
func (cb *ChoiceBuilder) Else(target VertexID, effect ActionFunc) *ChoiceBuilder {
	cb.v.Branches = append(cb.v.Branches, ChoiceBranch{Else: true, Target: target, Effect: effect})
	return cb
}

// TransitionBuilder attaches a guard and effect to a declared transition.
type TransitionBuilder struct {
	b *ModelBuilder
	t *Transition
}

// Transition declares an edge from source to target of the given kind.
// Use On/OnCompletion/OnTimeout/OnChange to set its trigger before adding
// guard/effect via When/Do.
func (b *ModelBuilder) Transition(source, target VertexID, kind TransitionKind) *TransitionBuilder {
	t := newTransition(source, target, kind, Signal, "")
	b.model.outgoing[source] = append(b.model.outgoing[source], t)
	return &TransitionBuilder{b: b, t: t}
}

// On sets the transition's trigger to a named Signal event.
func (tb *TransitionBuilder) On(eventName string) *TransitionBuilder {
	tb.t.Trigger = Signal
	tb.t.EventName = eventName
	return tb
}

// OnCompletion sets the transition's trigger to the implicit Completion
// event the interpreter raises once Source's regions (if composite, for a
// source with no regions this never fires) have all reached Final.
func (tb *TransitionBuilder) OnCompletion() *TransitionBuilder {
	tb.t.Trigger = Completion
	return tb
}

// OnTimeout sets the transition's trigger to the TimeElapsed event raised
// by a matching After() declaration on Source.
func (tb *TransitionBuilder) OnTimeout() *TransitionBuilder {
	tb.t.Trigger = TimeElapsed
	return tb
}

// OnChange sets the transition's trigger to a named Change event.
func (tb *TransitionBuilder) OnChange(name string) *TransitionBuilder {
	tb.t.Trigger = Change
	tb.t.EventName = name
	return tb
}

func (tb *TransitionBuilder) When(guard GuardFunc) *TransitionBuilder { tb.t.Guard = guard; return tb }
func (tb *TransitionBuilder) Do(effect ActionFunc) *TransitionBuilder { tb.t.Effect = effect; return tb }

// Build validates and freezes the model graph, producing the freeze-time
// errors named by the spec: ModelFrozen (builder reused after Build),
// UnreachableState, MissingInitial, IncompleteChoice and
// AmbiguousTransition.
func (b *ModelBuilder) Build() (*Model, error) {
	if b.model.frozen {
		return nil, newModelError(ErrCodeModelFrozen, "", "model already built")
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	exists := func(id VertexID) bool {
		if id == "" {
			return true
		}
		_, ok := b.model.vertices.Get(id)
		return ok
	}

	for pair := b.model.vertices.Oldest(); pair != nil; pair = pair.Next() {
		v := pair.Value
		if v.IsComposite() {
			for _, rid := range v.Regions {
				r := b.model.regions[rid]
				if r.Initial == "" {
					return nil, newModelError(ErrCodeMissingInitial, v.ID, "composite %q region %q has no Initial", v.ID, rid)
				}
			}
		}

		// A choice/junction must carry an else branch as its last
		// declared edge: with no else, a traversal that exhausts every
		// guard has nowhere to go, which must be caught at freeze time
		// rather than surfacing as a dispatch-time IncompleteChoice.
		if v.Kind == KindChoice || v.Kind == KindJunction {
			if len(v.Branches) == 0 || !v.Branches[len(v.Branches)-1].Else {
				return nil, newModelError(ErrCodeIncompleteChoice, v.ID, "pseudostate %q has no else as its last-declared branch", v.ID)
			}
		}

		for _, t := range b.model.outgoing[v.ID] {
			if !exists(t.Target) {
				return nil, newModelError(ErrCodeUnreachableState, t.Target, "transition from %q targets unknown vertex %q", t.Source, t.Target)
			}
		}
		switch v.Kind {
		case KindChoice, KindJunction:
			for _, br := range v.Branches {
				if !exists(br.Target) {
					return nil, newModelError(ErrCodeUnreachableState, br.Target, "pseudostate %q branch targets unknown vertex %q", v.ID, br.Target)
				}
			}
		case KindFork:
			for _, target := range v.ForkTargets {
				if !exists(target) {
					return nil, newModelError(ErrCodeUnreachableState, target, "fork %q targets unknown vertex %q", v.ID, target)
				}
			}
		case KindJoin:
			if !exists(v.JoinTarget) {
				return nil, newModelError(ErrCodeUnreachableState, v.JoinTarget, "join %q targets unknown vertex %q", v.ID, v.JoinTarget)
			}
			for _, combo := range v.JoinSources {
				for _, src := range combo {
					if !exists(src) {
						return nil, newModelError(ErrCodeUnreachableState, src, "join %q source %q does not exist", v.ID, src)
					}
				}
			}
		case KindShallowHistory, KindDeepHistory:
			if !exists(v.HistoryDefault) {
				return nil, newModelError(ErrCodeUnreachableState, v.HistoryDefault, "history %q fallback targets unknown vertex %q", v.ID, v.HistoryDefault)
			}
		}
	}

	root, _ := b.model.vertices.Get(b.model.root)
	for _, rid := range root.Regions {
		r := b.model.regions[rid]
		if r.Initial == "" {
			return nil, newModelError(ErrCodeMissingInitial, b.model.root, "root region %q has no Initial", rid)
		}
	}

	for pair := b.model.vertices.Oldest(); pair != nil; pair = pair.Next() {
		seen := make(map[string]map[string]bool)
		for _, t := range b.model.outgoing[pair.Key] {
			if t.Trigger != Signal {
				continue
			}
			key := t.EventName
			if t.Guard == nil {
				if seen[key] == nil {
					seen[key] = make(map[string]bool)
				}
				if seen[key]["_unguarded"] {
					return nil, newModelError(ErrCodeAmbiguousTransition, pair.Key, "multiple unguarded transitions for event %q", key)
				}
				seen[key]["_unguarded"] = true
			}
		}
	}

	b.model.frozen = true
	return b.model, nil
}
