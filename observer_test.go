package stateforward

import (
	"context"
	"sync"
	"testing"
)

type recordingObserver struct {
	BaseObserver
	mu      sync.Mutex
	entered []VertexID
	exited  []VertexID
}

func (r *recordingObserver) OnEnter(_ *Interpreter, vertex VertexID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entered = append(r.entered, vertex)
}

func (r *recordingObserver) OnExit(_ *Interpreter, vertex VertexID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exited = append(r.exited, vertex)
}

func (r *recordingObserver) snapshot() ([]VertexID, []VertexID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entered := append([]VertexID(nil), r.entered...)
	exited := append([]VertexID(nil), r.exited...)
	return entered, exited
}

type panickingObserver struct {
	BaseObserver
}

func (panickingObserver) OnEnter(*Interpreter, VertexID) {
	panic("boom")
}

func TestObserverManager_NotifiesRegisteredObservers(t *testing.T) {
	m := newObserverManager()
	rec := &recordingObserver{}
	m.Add(rec)

	m.notifyEnter(nil, "Off")
	m.notifyExit(nil, "Off")
	m.notifyEnter(nil, "On")

	entered, exited := rec.snapshot()
	if len(entered) != 2 || entered[0] != "Off" || entered[1] != "On" {
		t.Errorf("expected [Off On] entered, got %v", entered)
	}
	if len(exited) != 1 || exited[0] != "Off" {
		t.Errorf("expected [Off] exited, got %v", exited)
	}
}

func TestObserverManager_RemoveStopsNotification(t *testing.T) {
	m := newObserverManager()
	rec := &recordingObserver{}
	m.Add(rec)
	m.Remove(rec)

	m.notifyEnter(nil, "Off")

	entered, _ := rec.snapshot()
	if len(entered) != 0 {
		t.Errorf("expected no notifications after Remove, got %v", entered)
	}
}

func TestObserverManager_PanickingObserverDoesNotStopOthers(t *testing.T) {
	m := newObserverManager()
	m.Add(panickingObserver{})
	rec := &recordingObserver{}
	m.Add(rec)

	m.notifyEnter(nil, "Off")

	entered, _ := rec.snapshot()
	if len(entered) != 1 || entered[0] != "Off" {
		t.Errorf("expected the non-panicking observer to still be notified, got %v", entered)
	}
}

func TestInterpreter_ObserveReceivesEnterAndExit(t *testing.T) {
	b := NewModelBuilder()
	off := b.State("Off", b.RootRegion()).ID()
	on := b.State("On", b.RootRegion()).ID()
	b.Initial(b.RootRegion(), off)
	b.Transition(off, on, External).On("toggle")

	model, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	in := New(model)
	rec := &recordingObserver{}
	in.Observe(rec)

	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer in.Stop()

	if err := in.Send(NewEvent("toggle", nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	awaitOrFail(t, in)

	entered, exited := rec.snapshot()
	if len(entered) == 0 || entered[0] != off {
		t.Errorf("expected Off entered first, got %v", entered)
	}
	found := false
	for _, v := range exited {
		if v == off {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Off to be observed exiting on toggle, got %v", exited)
	}
}
