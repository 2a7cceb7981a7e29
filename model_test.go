package stateforward

import "testing"

func buildNestedModel(t *testing.T) (*Model, VertexID, VertexID, VertexID) {
	t.Helper()
	b := NewModelBuilder()
	outer := b.Composite("Outer", b.RootRegion()).ID()
	outerRegion := b.Region(outer)
	inner := b.Composite("Inner", outerRegion).ID()
	innerRegion := b.Region(inner)
	leaf := b.State("Leaf", innerRegion).ID()

	b.Initial(b.RootRegion(), outer)
	b.Initial(outerRegion, inner)
	b.Initial(innerRegion, leaf)

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return model, outer, inner, leaf
}

func TestModel_AncestorsAndLCA(t *testing.T) {
	model, outer, inner, leaf := buildNestedModel(t)

	ancestors := model.Ancestors(leaf)
	if len(ancestors) != 3 {
		t.Fatalf("expected 3 ancestors of Leaf (root, Outer, Inner), got %d: %v", len(ancestors), ancestors)
	}
	if ancestors[len(ancestors)-1] != inner {
		t.Errorf("expected Leaf's immediate ancestor to be Inner, got %q", ancestors[len(ancestors)-1])
	}

	if !model.IsDescendant(leaf, outer) {
		t.Errorf("expected Leaf to be a descendant of Outer")
	}
	if model.IsDescendant(outer, leaf) {
		t.Errorf("did not expect Outer to be a descendant of Leaf")
	}

	if lca := model.LCA(leaf, inner); lca != inner {
		t.Errorf("expected LCA(Leaf, Inner) == Inner, got %q", lca)
	}
	if lca := model.LCA(leaf, outer); lca != outer {
		t.Errorf("expected LCA(Leaf, Outer) == Outer, got %q", lca)
	}
}

func TestModel_RegionsAreDistinctForOrthogonalComposite(t *testing.T) {
	b := NewModelBuilder()
	composite := b.Composite("C", b.RootRegion()).ID()
	r1 := b.Region(composite)
	r2 := b.Region(composite)

	if r1 == r2 {
		t.Fatalf("expected two distinct region ids, got the same one twice")
	}

	a := b.State("A", r1).ID()
	x := b.State("X", r2).ID()

	region, ok := b.model.regionOf(a)
	if !ok || region.ID != r1 {
		t.Errorf("expected %q to belong to region %q", a, r1)
	}
	region2, ok := b.model.regionOf(x)
	if !ok || region2.ID != r2 {
		t.Errorf("expected %q to belong to region %q", x, r2)
	}
}
