package stateforward

import "sort"

// candidate is an enabled transition paired with the active leaf whose
// ancestor chain it was found on, so the selector can resolve conflicts
// between regions.
type candidate struct {
	transition *Transition
	fromLeaf   VertexID
}

// selector implements the conflict-resolution and pseudostate-expansion
// rules of the transition-selection algorithm: inner-first / deepest-source
// wins, declaration-order tiebreak among same-depth candidates, and
// orthogonal regions never conflict with one another.
type selector struct {
	model *Model
}

func newSelector(m *Model) *selector {
	return &selector{model: m}
}

// enabledFor returns the transitions out of leaf or any of its ancestors
// whose trigger matches evt and whose guard (if any) currently passes,
// ordered innermost-to-outermost.
func (s *selector) enabledFor(cfg *Configuration, leaf VertexID, evt *Event, x *executor, stepCtx *StepContext) ([]candidate, error) {
	chain := append(s.model.Ancestors(leaf), leaf)
	var found []candidate
	for i := len(chain) - 1; i >= 0; i-- {
		v := chain[i]
		for _, t := range s.model.TransitionsOut(v) {
			if !evt.matchesTrigger(t) {
				continue
			}
			ok, err := x.runGuard(t.Guard, stepCtx.forTransition(t.Source, t.Target))
			if err != nil {
				return nil, err
			}
			if ok {
				found = append(found, candidate{transition: t, fromLeaf: leaf})
			}
		}
	}
	return found, nil
}

// resolve picks at most one winning transition per conflicting group from
// candidates drawn across every active leaf. Two candidates conflict when
// their source-to-root chains intersect below the model root, i.e. they
// would exit a common vertex; candidates rooted in disjoint orthogonal
// regions never conflict and all fire together.
func (s *selector) resolve(candidates []candidate) []*Transition {
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := s.model.depth(candidates[i].transition.Source), s.model.depth(candidates[j].transition.Source)
		if di != dj {
			return di > dj // deepest source wins: sort deepest first
		}
		return candidates[i].transition.declOrder < candidates[j].transition.declOrder
	})

	var winners []*Transition
	claimed := make(map[VertexID]bool)
	for _, c := range candidates {
		span := s.span(c)
		conflict := false
		for _, v := range span {
			if claimed[v] {
				conflict = true
				break
			}
		}
		if !conflict && len(span) > 0 && c.transition.Kind != Internal {
			// the whole subtree under span's outermost vertex is exited, so
			// a claimed vertex above or below it conflicts too
			top := span[len(span)-1]
			for v := range claimed {
				if s.model.IsDescendant(v, top) || s.model.IsDescendant(top, v) {
					conflict = true
					break
				}
			}
		}
		if conflict {
			continue
		}
		for _, v := range span {
			claimed[v] = true
		}
		winners = append(winners, c.transition)
	}
	return winners
}

// span returns every vertex a candidate's firing would actually tear down:
// the chain from its active leaf up to (not including) the transition's
// LCA. Using the active leaf rather than the transition's declared Source
// means an outer transition (source = some ancestor composite) and an
// inner transition (source = the active leaf itself) are correctly seen
// to conflict, since firing the outer one would force-exit the inner
// one's state too. Two transitions whose leaves sit in different
// orthogonal regions of the same composite never share any vertex below
// that composite, so they never conflict.
func (s *selector) span(c candidate) []VertexID {
	t := c.transition
	if t.Kind == Internal {
		return []VertexID{t.Source}
	}
	lca := s.model.LCA(t.Source, t.Target)
	chain := append(s.model.Ancestors(c.fromLeaf), c.fromLeaf)
	var out []VertexID
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i] == lca {
			break
		}
		out = append(out, chain[i])
	}
	return out
}

// exitSet returns the vertices to exit for transition t, deepest first,
// given the configuration's current active leaf on t's source side.
func (s *selector) exitSet(cfg *Configuration, t *Transition, activeLeaf VertexID) []VertexID {
	var lca VertexID
	switch t.Kind {
	case Internal:
		return nil
	case Local:
		lca = t.Source
		if s.model.IsDescendant(t.Target, t.Source) {
			// exiting down into our own subtree: nothing above Source exits
		} else if s.model.IsDescendant(t.Source, t.Target) {
			lca = t.Target
		}
	default:
		lca = s.model.LCA(t.Source, t.Target)
	}

	chain := append(s.model.Ancestors(activeLeaf), activeLeaf)
	var out []VertexID
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i] == lca {
			break
		}
		out = append(out, chain[i])
	}
	return out
}

// entryPath returns the vertices to enter for transition t, outermost
// first, from the same lca used by exitSet up to and including t.Target.
func (s *selector) entryPath(t *Transition) []VertexID {
	var lca VertexID
	switch t.Kind {
	case Internal:
		return nil
	case Local:
		lca = t.Source
		if s.model.IsDescendant(t.Source, t.Target) {
			lca = t.Target
		}
	default:
		lca = s.model.LCA(t.Source, t.Target)
	}

	var path []VertexID
	for cur := t.Target; cur != "" && cur != lca; cur = s.model.Parent(cur) {
		path = append([]VertexID{cur}, path...)
	}
	return path
}
