package stateforward

import "testing"

func buildOrthogonalModel(t *testing.T) (*Model, VertexID, RegionID, RegionID, VertexID, VertexID, VertexID, VertexID) {
	t.Helper()
	b := NewModelBuilder()
	microwave := b.Composite("Microwave", b.RootRegion()).ID()
	doorRegion := b.Region(microwave)
	powerRegion := b.Region(microwave)

	doorClosed := b.State("DoorClosed", doorRegion).ID()
	b.Initial(doorRegion, doorClosed)

	idle := b.State("Idle", powerRegion).ID()
	cooking := b.State("Cooking", powerRegion).ID()
	b.Initial(powerRegion, idle)
	b.Transition(idle, cooking, External).On("start")

	b.Initial(b.RootRegion(), microwave)

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return model, microwave, doorRegion, powerRegion, doorClosed, idle, cooking, cooking
}

func TestConfiguration_ActivateSetsAncestorChain(t *testing.T) {
	model, microwave, _, powerRegion, _, _, cooking, _ := buildOrthogonalModel(t)
	cfg := newConfiguration(model)

	cfg.activate(cooking)

	if !cfg.IsActive(cooking) {
		t.Errorf("expected Cooking active")
	}
	if !cfg.IsActive(microwave) {
		t.Errorf("expected ancestor Microwave active once Cooking is active (I2)")
	}
	if cfg.leaf[powerRegion] != cooking {
		t.Errorf("expected power region's active child to be Cooking, got %v", cfg.leaf[powerRegion])
	}
}

func TestConfiguration_DeactivateClearsLeafAndOptionallyRecordsHistory(t *testing.T) {
	model, _, _, powerRegion, _, idle, cooking, _ := buildOrthogonalModel(t)
	cfg := newConfiguration(model)
	cfg.activate(idle)
	cfg.activate(cooking) // simulate re-activation onto a new leaf of the same region

	cfg.deactivate(cooking, true)

	if cfg.IsActive(cooking) {
		t.Errorf("expected Cooking inactive after deactivate")
	}
	if _, ok := cfg.leaf[powerRegion]; ok {
		t.Errorf("expected power region to have no active child after deactivate")
	}
	h, ok := cfg.historyOf(powerRegion)
	if !ok || h != cooking {
		t.Errorf("expected history to record Cooking, got %v (ok=%v)", h, ok)
	}
}

func TestConfiguration_CompositeCompleteRequiresEveryRegionAtFinal(t *testing.T) {
	b := NewModelBuilder()
	audio := b.Composite("AudioProcessor", b.RootRegion()).ID()
	decodeRegion := b.Region(audio)
	meterRegion := b.Region(audio)

	decoding := b.State("Decoding", decodeRegion).ID()
	decodeDone := b.Final("DecodeDone", decodeRegion).ID()
	b.Initial(decodeRegion, decoding)
	b.Transition(decoding, decodeDone, External).On("decoded")

	metering := b.State("Metering", meterRegion).ID()
	meterDone := b.Final("MeterDone", meterRegion).ID()
	b.Initial(meterRegion, metering)
	b.Transition(metering, meterDone, External).On("metered")

	b.Initial(b.RootRegion(), audio)

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cfg := newConfiguration(model)
	cfg.activate(decoding)
	cfg.activate(metering)

	if cfg.compositeComplete(audio) {
		t.Fatalf("expected AudioProcessor incomplete while either region is not at Final")
	}

	cfg.deactivate(decoding, false)
	cfg.activate(decodeDone)
	if cfg.compositeComplete(audio) {
		t.Fatalf("expected AudioProcessor still incomplete with only one region at Final (I4)")
	}

	cfg.deactivate(metering, false)
	cfg.activate(meterDone)
	if !cfg.compositeComplete(audio) {
		t.Fatalf("expected AudioProcessor complete once both regions reach Final (I4)")
	}
}
