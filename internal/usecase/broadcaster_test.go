package usecase

import (
	"testing"

	"dialogue-orchestrator/internal/domain/model"
)

func TestBroadcaster_FanOutAndUnsubscribe(t *testing.T) {
	b := newBroadcaster(4)
	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelC()

	b.Publish(model.Event{Type: model.EventStatus, Status: model.StatusPaused})
	for _, ch := range []<-chan model.Event{a, c} {
		ev := <-ch
		if ev.Type != model.EventStatus || ev.At.IsZero() {
			t.Fatalf("unexpected event %+v", ev)
		}
	}

	cancelA()
	cancelA() // idempotent
	if _, ok := <-a; ok {
		t.Fatal("cancelled channel should be closed")
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}
}

func TestBroadcaster_SlowSubscriberDrops(t *testing.T) {
	b := newBroadcaster(2)
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Publish(model.Event{Type: model.EventMessage})
	}
	if len(ch) != 2 {
		t.Fatalf("buffered = %d, want 2", len(ch))
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := newBroadcaster(4)
	ch, cancel := b.Subscribe()

	b.Close(model.Event{Type: model.EventClosed})
	b.Close(model.Event{Type: model.EventClosed})
	cancel()

	ev, ok := <-ch
	if !ok || ev.Type != model.EventClosed {
		t.Fatalf("expected closed event first, got %+v ok=%v", ev, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after the final event")
	}

	b.Publish(model.Event{Type: model.EventMessage}) // no panic on closed broadcaster
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribing after close should yield a closed channel")
	}
}
