package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	b := New()
	ch1, un1 := b.Subscribe(4)
	ch2, un2 := b.Subscribe(4)
	defer un1()
	defer un2()

	b.Publish(Event{Type: "schedule.added", Data: "x"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != "schedule.added" {
				t.Fatalf("subscriber %d got type %q, want schedule.added", i, e.Type)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d got zero event time", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Second publish exceeds the buffer; it must drop, not block.
		b.Publish(Event{Type: "digest.sent"})
		b.Publish(Event{Type: "digest.sent"})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // second call is a no-op

	// Publishing after unsubscribe must not panic even though ch is closed.
	b.Publish(Event{Type: "schedule.cleared"})

	if _, ok := <-ch; ok {
		t.Fatal("received an event after unsubscribe")
	}
}

func TestSubscribeDefaultsBuffer(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(0)
	defer unsub()

	// Default buffer must absorb at least one event without a reader.
	b.Publish(Event{Type: "schedule.added"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("default-buffer subscriber never received the event")
	}
}
