package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: SessionStarted, Data: "payload"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != SessionStarted || e.Data != "payload" {
				t.Fatalf("event = %+v", e)
			}
			if e.Time.IsZero() {
				t.Fatal("zero Time was not stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: SessionStarted})
	b.Publish(Event{Type: SessionEnded}) // buffer full, dropped
	b.Publish(Event{Type: SessionFailed})

	e := <-ch
	if e.Type != SessionStarted {
		t.Fatalf("first event = %s", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event: %s", e.Type)
	default:
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub() // double unsubscribe is safe

	// Publishing after close must not panic the caller.
	b.Publish(Event{Type: SessionEnded})
}
