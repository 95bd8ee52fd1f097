package eventbus

import "testing"

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: TypeReminderSent})
	b.Publish(Event{Type: TypeBoardUpdated})

	if e := <-a; e.Type != TypeReminderSent || e.Time.IsZero() {
		t.Fatalf("first event on a = %+v", e)
	}
	select {
	case e := <-a:
		t.Fatalf("a should have dropped the second event, got %+v", e)
	default:
	}
	if got := len(c); got != 2 {
		t.Fatalf("c buffered %d events, want 2", got)
	}

	unsubA()
	unsubA()
	b.Publish(Event{Type: TypeEventsChanged})
	if _, ok := <-a; ok {
		t.Fatalf("channel not closed after unsubscribe")
	}
}
