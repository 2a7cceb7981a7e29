package stateforward

import "testing"

func TestBuilder_MissingInitialIsRejected(t *testing.T) {
	b := NewModelBuilder()
	b.State("Lonely", b.RootRegion())
	// No Initial() call against the root region.

	_, err := b.Build()
	if err == nil {
		t.Fatal("expected Build to fail without an Initial declaration")
	}
	if !IsModelError(err) || ErrorCodeOf(err) != ErrCodeMissingInitial {
		t.Errorf("expected ErrCodeMissingInitial, got %v", err)
	}
}

func TestBuilder_IncompleteChoiceIsRejected(t *testing.T) {
	b := NewModelBuilder()
	idle := b.State("Idle", b.RootRegion()).ID()
	b.Initial(b.RootRegion(), idle)
	b.Choice("Empty", b.RootRegion())

	_, err := b.Build()
	if err == nil {
		t.Fatal("expected Build to fail for a Choice with no branches")
	}
	if ErrorCodeOf(err) != ErrCodeIncompleteChoice {
		t.Errorf("expected ErrCodeIncompleteChoice, got %v", err)
	}
}

func TestBuilder_BuildTwiceIsRejected(t *testing.T) {
	b := NewModelBuilder()
	idle := b.State("Idle", b.RootRegion()).ID()
	b.Initial(b.RootRegion(), idle)

	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	_, err := b.Build()
	if ErrorCodeOf(err) != ErrCodeModelFrozen {
		t.Errorf("expected ErrCodeModelFrozen on rebuild, got %v", err)
	}
}
