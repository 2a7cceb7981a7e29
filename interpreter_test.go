package stateforward

import (
	"context"
	"testing"
	"time"
)

func awaitOrFail(t *testing.T, in *Interpreter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := in.AwaitSettled(ctx); err != nil {
		t.Fatalf("AwaitSettled: %v", err)
	}
}

func TestInterpreter_LightSwitchToggles(t *testing.T) {
	b := NewModelBuilder()
	off := b.State("Off", b.RootRegion()).ID()
	on := b.State("On", b.RootRegion()).ID()
	b.Initial(b.RootRegion(), off)
	b.Transition(off, on, External).On("toggle")
	b.Transition(on, off, External).On("toggle")

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	in := New(model)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer in.Stop()

	if !in.IsActive(off) {
		t.Fatalf("expected Off active initially")
	}

	if err := in.Send(NewEvent("toggle", nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	awaitOrFail(t, in)

	if !in.IsActive(on) || in.IsActive(off) {
		t.Errorf("expected On active after toggle, got %v", in.State())
	}
}

func TestInterpreter_OrthogonalRegionsDoNotConflict(t *testing.T) {
	b := NewModelBuilder()
	microwave := b.Composite("Microwave", b.RootRegion()).ID()
	doorRegion := b.Region(microwave)
	powerRegion := b.Region(microwave)

	doorClosed := b.State("DoorClosed", doorRegion).ID()
	doorOpen := b.State("DoorOpen", doorRegion).ID()
	b.Initial(doorRegion, doorClosed)

	idle := b.State("Idle", powerRegion).ID()
	cooking := b.State("Cooking", powerRegion).ID()
	b.Initial(powerRegion, idle)

	b.Transition(doorClosed, doorOpen, External).On("door_opened")
	b.Transition(idle, cooking, External).On("start")
	b.Transition(cooking, idle, External).On("door_opened")

	b.Initial(b.RootRegion(), microwave)

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := New(model)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer in.Stop()

	in.Send(NewEvent("start", nil))
	awaitOrFail(t, in)
	if !in.IsActive(cooking) {
		t.Fatalf("expected Cooking active after start, got %v", in.State())
	}

	// door_opened matches a transition in both the door region and the
	// power region; since they're orthogonal they must both fire.
	in.Send(NewEvent("door_opened", nil))
	awaitOrFail(t, in)
	if !in.IsActive(doorOpen) {
		t.Errorf("expected DoorOpen active, got %v", in.State())
	}
	if !in.IsActive(idle) {
		t.Errorf("expected Idle active (cooking stopped), got %v", in.State())
	}
}

func TestInterpreter_ChoicePicksFirstPassingBranch(t *testing.T) {
	b := NewModelBuilder()
	idle := b.State("Idle", b.RootRegion()).ID()
	high := b.State("High", b.RootRegion()).ID()
	low := b.State("Low", b.RootRegion()).ID()
	b.Initial(b.RootRegion(), idle)

	humidity := 80
	choice := b.Choice("PickSpeed", b.RootRegion()).
		Branch(func(ctx *StepContext) bool { return humidity > 70 }, high, nil).
		Else(low, nil).
		ID()

	b.Transition(idle, choice, External).On("start")

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := New(model)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer in.Stop()

	in.Send(NewEvent("start", nil))
	awaitOrFail(t, in)

	if !in.IsActive(high) {
		t.Errorf("expected High active for humidity=80, got %v", in.State())
	}
}

func TestInterpreter_TimerSelfLoop(t *testing.T) {
	b := NewModelBuilder()
	blinking := b.State("Blinking", b.RootRegion()).
		After(20 * time.Millisecond).ID()
	b.Initial(b.RootRegion(), blinking)

	ticks := 0
	b.Transition(blinking, blinking, External).
		OnTimeout().
		Do(func(ctx *StepContext) error { ticks++; return nil })

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := New(model)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer in.Stop()

	time.Sleep(120 * time.Millisecond)
	if ticks == 0 {
		t.Errorf("expected at least one timer-driven self transition, got %d", ticks)
	}
}

func TestInterpreter_DeferredEventReleasedOnExit(t *testing.T) {
	b := NewModelBuilder()
	locked := b.State("Locked", b.RootRegion()).Defer("unlock").ID()
	unlocking := b.State("Unlocking", b.RootRegion()).ID()
	unlocked := b.State("Unlocked", b.RootRegion()).ID()
	b.Initial(b.RootRegion(), locked)

	b.Transition(locked, unlocking, External).On("begin_unlock")
	b.Transition(unlocking, unlocked, External).On("unlock")

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := New(model)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer in.Stop()

	// "unlock" arrives while Locked (which defers it) is still active; it
	// has no matching transition out of Locked so it must be held, not
	// discarded, and released once Locked is exited.
	in.Send(NewEvent("unlock", nil))
	awaitOrFail(t, in)
	if !in.IsActive(locked) {
		t.Fatalf("expected Locked still active after deferred event, got %v", in.State())
	}

	in.Send(NewEvent("begin_unlock", nil))
	awaitOrFail(t, in)

	if !in.IsActive(unlocked) {
		t.Errorf("expected Unlocked active once the deferred unlock is released, got %v", in.State())
	}
}
