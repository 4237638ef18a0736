package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("monitor.", 4)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged, Timestamp: time.Now(), Payload: "x"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("kind = %q, want %q", evt.Kind, KindStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("monitor.status", 4)
	defer unsub()

	b.Publish(Event{Kind: KindMessageStored})
	b.Publish(Event{Kind: KindStatusChanged})

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("kind = %q, want only status events", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for filtered event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected second event %q", evt.Kind)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("monitor.", 4)
	unsub()

	b.Publish(Event{Kind: KindStatusChanged})

	select {
	case evt := <-ch:
		t.Errorf("received %q after unsubscribe", evt.Kind)
	default:
	}
}

func TestFullSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("monitor.", 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Kind: KindStatusChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}
