package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()

	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: TypeRunStarted, Data: "x"})

	for name, ch := range map[string]<-chan Event{"a": a, "c": c} {
		select {
		case ev := <-ch:
			if ev.Type != TypeRunStarted {
				t.Fatalf("sub %s: Type = %q, want %q", name, ev.Type, TypeRunStarted)
			}
			if ev.Time.IsZero() {
				t.Fatalf("sub %s: Time not stamped", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %s: no event", name)
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TypeRunProgress})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if got := len(ch); got != 1 {
		t.Fatalf("buffered events = %d, want 1", got)
	}
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(4)
	unsub()
	unsub()

	b.Publish(Event{Type: TypeRunFinished})
	if _, ok := <-ch; ok {
		t.Fatal("received event after unsubscribe")
	}
}
