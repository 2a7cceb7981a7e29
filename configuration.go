package stateforward

import "sort"

// Configuration is the interpreter's live bookkeeping of which vertices are
// active. It tracks the active-leaf set per region plus the full implicit
// ancestor chain, and enforces invariants I1-I3 as transitions are applied:
//
//	I1 exactly one active child per active region
//	I2 a vertex is active only if its full ancestor chain is active
//	I3 no pseudostate is ever active between steps
type Configuration struct {
	model *Model

	// active holds every currently active vertex (leaves and the
	// composite ancestors that contain them), keyed for O(1) membership.
	active map[VertexID]bool

	// leaf holds the region->active-child map, the canonical record from
	// which `active` is derived.
	leaf map[RegionID]VertexID

	// history records, per region, the last active child at the moment it
	// was exited. Shallow and deep history pseudostates both read this
	// same single-child record.
	history map[RegionID]VertexID
}

func newConfiguration(m *Model) *Configuration {
	return &Configuration{
		model:   m,
		active:  make(map[VertexID]bool),
		leaf:    make(map[RegionID]VertexID),
		history: make(map[RegionID]VertexID),
	}
}

// IsActive reports whether vertex id is currently active.
func (c *Configuration) IsActive(id VertexID) bool { return c.active[id] }

// ActiveLeaves returns the current active-child set of every region that
// has one. The result is a map keyed by region, so it carries no iteration
// order of its own; callers that need a deterministic order (diagnostics,
// tests) should sort the keys. Pseudostates never appear here (I3).
func (c *Configuration) ActiveLeaves() map[RegionID]VertexID {
	out := make(map[RegionID]VertexID, len(c.leaf))
	for r, v := range c.leaf {
		out[r] = v
	}
	return out
}

// activate marks id (and its full ancestor chain) active, and records it
// as the active child of its containing region.
func (c *Configuration) activate(id VertexID) {
	c.active[id] = true
	if r, ok := c.model.regionOf(id); ok {
		c.leaf[r.ID] = id
	}
	for _, anc := range c.model.Ancestors(id) {
		c.active[anc] = true
	}
}

// deactivate clears id from the active set and, if recordHistory is true,
// snapshots it into the owning region's history before clearing.
func (c *Configuration) deactivate(id VertexID, recordHistory bool) {
	if r, ok := c.model.regionOf(id); ok {
		if recordHistory {
			c.history[r.ID] = id
		}
		if c.leaf[r.ID] == id {
			delete(c.leaf, r.ID)
		}
	}
	delete(c.active, id)
}

// historyOf returns the last recorded active child of region r, and
// whether history has been recorded at all.
func (c *Configuration) historyOf(r RegionID) (VertexID, bool) {
	v, ok := c.history[r]
	return v, ok
}

// regionsActive reports whether every region owned by composite id has an
// active child (invariant I4's precondition for completion).
func (c *Configuration) regionsActive(id VertexID) bool {
	for _, r := range c.model.Regions(id) {
		if _, ok := c.leaf[r.ID]; !ok {
			return false
		}
	}
	return true
}

// regionComplete reports whether the active child of region r is a Final
// vertex, i.e. the region has nothing left to do.
func (c *Configuration) regionComplete(r *Region) bool {
	v, ok := c.leaf[r.ID]
	if !ok {
		return false
	}
	vtx, ok := c.model.Vertex(v)
	return ok && vtx.Kind == KindFinal
}

// compositeComplete reports whether every region of composite id has
// reached its Final vertex (invariant I4: completion propagates only once
// all regions agree).
func (c *Configuration) compositeComplete(id VertexID) bool {
	regions := c.model.Regions(id)
	if len(regions) == 0 {
		return false
	}
	for _, r := range regions {
		if !c.regionComplete(r) {
			return false
		}
	}
	return true
}

// snapshot returns a stable, sorted list of the active child of every
// region, composite states included. Interpreter.State filters the
// composites out to report only leaves.
func (c *Configuration) snapshot() []VertexID {
	out := make([]VertexID, 0, len(c.leaf))
	for _, v := range c.leaf {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
