package events

import "testing"

func TestRegisterAndTrigger(t *testing.T) {
	b := New()
	var got Event
	called := false
	b.Register(func(e Event) {
		called = true
		got = e
	})
	b.Trigger(Event{Type: FingerDetected})
	if !called {
		t.Fatal("handler was not invoked")
	}
	if got.Type != FingerDetected {
		t.Errorf("Type = %v, want FingerDetected", got.Type)
	}
}

func TestRegisterIsIdempotentLastWins(t *testing.T) {
	b := New()
	var first, second bool
	b.Register(func(Event) { first = true })
	b.Register(func(Event) { second = true })
	b.Trigger(Event{})
	if first {
		t.Error("first handler should have been replaced")
	}
	if !second {
		t.Error("second handler should have fired")
	}
}

func TestTriggerWithNoHandlerDoesNotPanic(t *testing.T) {
	b := New()
	b.Trigger(Event{Type: Error})
}

func TestCopyTemplatePayloadNilSafe(t *testing.T) {
	p := CopyTemplatePayload(nil)
	if p.Size != 0 || p.Complete {
		t.Error("expected zero-value payload for nil source")
	}
}
