package stateforward

import "testing"

func TestEventQueue_CompletionJumpsAheadOfSignals(t *testing.T) {
	q := newEventQueue()

	if err := q.push(NewEvent("a", nil)); err != nil {
		t.Fatalf("push a: %v", err)
	}
	if err := q.push(newCompletionEvent("Idle")); err != nil {
		t.Fatalf("push completion: %v", err)
	}
	if err := q.push(NewEvent("b", nil)); err != nil {
		t.Fatalf("push b: %v", err)
	}

	first, ok := q.pop()
	if !ok || first.Kind != Completion {
		t.Fatalf("expected Completion event first, got %+v (ok=%v)", first, ok)
	}
	second, ok := q.pop()
	if !ok || second.Name != "a" {
		t.Fatalf("expected signal a second, got %+v", second)
	}
	third, ok := q.pop()
	if !ok || third.Name != "b" {
		t.Fatalf("expected signal b third, got %+v", third)
	}
}

func TestEventQueue_CloseUnblocksPop(t *testing.T) {
	q := newEventQueue()
	done := make(chan struct{})
	go func() {
		_, ok := q.pop()
		if ok {
			t.Error("expected pop to report closed, got an event")
		}
		close(done)
	}()
	q.close()
	<-done

	if err := q.push(NewEvent("late", nil)); err == nil {
		t.Fatal("expected push after close to fail")
	} else if ErrorCodeOf(err) != ErrCodeQueueClosed {
		t.Errorf("expected ErrCodeQueueClosed, got %v", err)
	}
}

func TestEventQueue_DeferAndReleasePreservesArrivalOrder(t *testing.T) {
	q := newEventQueue()
	locked := VertexID("Locked")

	first := NewEvent("unlock", nil)
	second := NewEvent("unlock", nil)
	q.defer_(locked, first)
	q.defer_(locked, second)

	if q.pending() {
		t.Fatalf("expected no ready/urgent events while only deferred events are held")
	}

	released := q.release(locked)
	if len(released) != 2 || released[0] != first || released[1] != second {
		t.Fatalf("expected deferred events released in arrival order, got %+v", released)
	}

	if again := q.release(locked); again != nil {
		t.Errorf("expected second release of the same state to return nothing, got %+v", again)
	}
}

func TestEventQueue_ReleaseFrontPrecedesAlreadyQueuedSignals(t *testing.T) {
	q := newEventQueue()
	pending := NewEvent("pending", nil)
	if err := q.push(pending); err != nil {
		t.Fatalf("push pending: %v", err)
	}

	deferred1 := NewEvent("unlock", nil)
	deferred2 := NewEvent("confirm", nil)
	q.releaseFront([]*Event{deferred1, deferred2})

	first, ok := q.pop()
	if !ok || first != deferred1 {
		t.Fatalf("expected first deferred event released to the head, got %+v", first)
	}
	second, ok := q.pop()
	if !ok || second != deferred2 {
		t.Fatalf("expected second deferred event next, got %+v", second)
	}
	third, ok := q.pop()
	if !ok || third != pending {
		t.Fatalf("expected the already-queued signal last, got %+v", third)
	}
}
