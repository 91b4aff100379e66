package geofence

import "testing"

func TestBus_OrderAndOff(t *testing.T) {
	b := NewBus()
	var got []int
	b.On(EventPrimary, func(Event) { got = append(got, 1) })
	s2 := b.On(EventPrimary, func(Event) { got = append(got, 2) })
	b.On(EventPrimary, func(Event) { got = append(got, 3) })
	b.On(EventEnter, func(Event) { got = append(got, 99) })

	b.Publish(Event{Kind: EventPrimary})
	b.Off(s2)
	b.Publish(Event{Kind: EventPrimary})
	b.OffAll(EventPrimary)
	b.Publish(Event{Kind: EventPrimary})

	want := []int{1, 2, 3, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}

func TestBus_HandlerMayUnsubscribe(t *testing.T) {
	b := NewBus()
	calls := 0
	var sub Subscription
	sub = b.On(EventExit, func(Event) {
		calls++
		b.Off(sub)
	})
	b.Publish(Event{Kind: EventExit})
	b.Publish(Event{Kind: EventExit})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
