package stateforward

import (
	"fmt"
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// VertexID names a vertex in the model graph. IDs are assigned by the
// builder and are stable for the lifetime of the model.
type VertexID string

// RegionID names a region owned by a composite state; the top-level region
// is owned by the model's implicit root composite.
type RegionID string

// VertexKind enumerates the kinds of vertex the model graph can contain.
type VertexKind int

const (
	KindComposite VertexKind = iota
	KindLeaf
	KindInitial
	KindChoice
	KindJunction
	KindFork
	KindJoin
	KindTerminate
	KindShallowHistory
	KindDeepHistory
	KindFinal
)

func (k VertexKind) String() string {
	switch k {
	case KindComposite:
		return "composite"
	case KindLeaf:
		return "leaf"
	case KindInitial:
		return "initial"
	case KindChoice:
		return "choice"
	case KindJunction:
		return "junction"
	case KindFork:
		return "fork"
	case KindJoin:
		return "join"
	case KindTerminate:
		return "terminate"
	case KindShallowHistory:
		return "shallow-history"
	case KindDeepHistory:
		return "deep-history"
	case KindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// IsPseudostate reports whether k is one of the transient vertex kinds that
// may never appear in a stable configuration (invariant I3).
func (k VertexKind) IsPseudostate() bool {
	switch k {
	case KindInitial, KindChoice, KindJunction, KindFork, KindJoin, KindTerminate, KindShallowHistory, KindDeepHistory:
		return true
	default:
		return false
	}
}

// ChoiceBranch is one guarded outgoing edge of a Choice pseudostate. Choice
// evaluates branches in declaration order at the moment of traversal
// (dynamic); the last declared branch may carry an Else guard.
type ChoiceBranch struct {
	Guard  GuardFunc
	Else   bool
	Target VertexID
	Effect ActionFunc
}

// Vertex is a node of the model graph. Once the owning Model is frozen,
// only a second ModelBuilder.Build call fails with ErrCodeModelFrozen; the
// builder's declaration methods (State, Transition, OnEntry, ...) do not
// check the frozen flag and still modify the model.
type Vertex struct {
	ID       VertexID
	Kind     VertexKind
	Parent   VertexID
	Children []VertexID
	Regions  []RegionID

	Entry    ActionFunc
	Exit     ActionFunc
	Activity ActivityFunc
	Timers   []after

	// Defer lists event names that should be set aside, rather than
	// discarded, while this state is active.
	Defer []string

	// Choice-only: ordered guarded branches.
	Branches []ChoiceBranch
	// Default is not set by ModelBuilder and not read by the interpreter;
	// Fork, Join and History vertices use ForkTargets, JoinTarget and
	// HistoryDefault, and Choice/Junction fall back to their Else branch.
	Default VertexID
	// Fork-only: targets entered atomically.
	ForkTargets []VertexID
	// Join-only: alternative combinations of source states that jointly
	// satisfy the join; JoinTarget is the vertex reached once satisfied.
	JoinSources [][]VertexID
	JoinTarget  VertexID
	// History-only: fallback target used the first time the region is
	// entered, before any history has been recorded.
	HistoryDefault VertexID
}

// IsComposite reports whether v owns one or more regions.
func (v *Vertex) IsComposite() bool { return v.Kind == KindComposite }

// IsOrthogonal reports whether v is a composite with more than one region.
func (v *Vertex) IsOrthogonal() bool { return v.Kind == KindComposite && len(v.Regions) > 1 }

// Region is a concurrent sub-area of a composite state (or, for the single
// implicit root region, of the machine itself). Exactly one of its States
// (or sub-states thereof) is active whenever the owning composite is active.
type Region struct {
	ID      RegionID
	Owner   VertexID // the root composite's id for the implicit root region
	Initial VertexID
	States  []VertexID
}

// Model is the immutable, arena-addressed tree of vertices, regions and
// transitions produced by a ModelBuilder. It is frozen before an Interpreter
// may start against it and is thereafter shared read-only by every
// component (Selector, Configuration, Timer Service, Behavior Executor).
type Model struct {
	vertices *orderedmap.OrderedMap[VertexID, *Vertex]
	regions  map[RegionID]*Region
	outgoing map[VertexID][]*Transition
	root     VertexID
	frozen   bool
}

func newModel() *Model {
	return &Model{
		vertices: orderedmap.New[VertexID, *Vertex](),
		regions:  make(map[RegionID]*Region),
		outgoing: make(map[VertexID][]*Transition),
	}
}

// Root returns the id of the root composite state.
func (m *Model) Root() VertexID { return m.root }

// Vertex looks up a vertex by id.
func (m *Model) Vertex(id VertexID) (*Vertex, bool) {
	return m.vertices.Get(id)
}

// MustVertex looks up a vertex by id, panicking if it does not exist. Used
// internally once the model is known to be frozen and consistent.
func (m *Model) MustVertex(id VertexID) *Vertex {
	v, ok := m.vertices.Get(id)
	if !ok {
		panic(fmt.Sprintf("stateforward: unknown vertex %q", id))
	}
	return v
}

// Region looks up a region by id.
func (m *Model) Region(id RegionID) (*Region, bool) {
	r, ok := m.regions[id]
	return r, ok
}

// Parent returns the parent vertex id, or "" for the root.
func (m *Model) Parent(id VertexID) VertexID {
	if v, ok := m.vertices.Get(id); ok {
		return v.Parent
	}
	return ""
}

// Children returns the direct child vertices of id (states and pseudostates
// declared in any of its regions).
func (m *Model) Children(id VertexID) []VertexID {
	if v, ok := m.vertices.Get(id); ok {
		return v.Children
	}
	return nil
}

// Regions returns the regions owned by composite id.
func (m *Model) Regions(id VertexID) []*Region {
	v, ok := m.vertices.Get(id)
	if !ok {
		return nil
	}
	out := make([]*Region, 0, len(v.Regions))
	for _, rid := range v.Regions {
		out = append(out, m.regions[rid])
	}
	return out
}

// Ancestors returns the ancestor chain of id, root-first, not including id
// itself.
func (m *Model) Ancestors(id VertexID) []VertexID {
	var chain []VertexID
	for cur := m.Parent(id); cur != ""; cur = m.Parent(cur) {
		chain = append([]VertexID{cur}, chain...)
	}
	return chain
}

// IsDescendant reports whether a is a (possibly indirect) descendant of b.
func (m *Model) IsDescendant(a, b VertexID) bool {
	for cur := m.Parent(a); cur != ""; cur = m.Parent(cur) {
		if cur == b {
			return true
		}
	}
	return false
}

// LCA returns the lowest common ancestor of a and b. If one is an ancestor
// of the other, LCA returns that ancestor. The root is always a common
// ancestor of any two vertices in the graph.
func (m *Model) LCA(a, b VertexID) VertexID {
	if a == b {
		if p := m.Parent(a); p != "" {
			return p
		}
		return a
	}
	ancestorsA := append(m.Ancestors(a), a)
	set := make(map[VertexID]int, len(ancestorsA))
	for i, v := range ancestorsA {
		set[v] = i
	}
	ancestorsB := append(m.Ancestors(b), b)
	for i := len(ancestorsB) - 1; i >= 0; i-- {
		if _, ok := set[ancestorsB[i]]; ok {
			return ancestorsB[i]
		}
	}
	return m.root
}

// regionOf returns the region that directly contains vertex id, if any.
func (m *Model) regionOf(id VertexID) (*Region, bool) {
	parent := m.Parent(id)
	var candidateRegions []RegionID
	if parent == "" {
		for rid, r := range m.regions {
			if r.Owner == "" {
				candidateRegions = append(candidateRegions, rid)
			}
		}
	} else if pv, ok := m.vertices.Get(parent); ok {
		candidateRegions = pv.Regions
	}
	for _, rid := range candidateRegions {
		r := m.regions[rid]
		for _, s := range r.States {
			if s == id {
				return r, true
			}
		}
	}
	return nil, false
}

// TransitionsOut returns the transitions declared with source id, in
// declaration order.
func (m *Model) TransitionsOut(id VertexID) []*Transition {
	return m.outgoing[id]
}

// depth returns the distance from the root to id (root is depth 0). Used by
// the Selector's inner-first conflict resolution.
func (m *Model) depth(id VertexID) int {
	return len(m.Ancestors(id))
}

var declSeq uint64

func nextDeclSeq() uint64 { return atomic.AddUint64(&declSeq, 1) }
