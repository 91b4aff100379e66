package geofence

import (
	"sync"

	"github.com/hamed0406/safezone/internal/domain"
)

type EventKind string

const (
	EventEnter   EventKind = "enter"
	EventExit    EventKind = "exit"
	EventPrimary EventKind = "primary"
)

// Event is delivered to handlers registered for its Kind. Fence is set for
// enter/exit; Primary is set (possibly nil) for primary events.
type Event struct {
	Kind     EventKind
	Fence    domain.GeofenceZone
	Primary  *domain.GeofenceZone
	Location domain.LocationSample
}

type Handler func(Event)

// Subscription identifies one registered handler for Off.
type Subscription struct {
	kind EventKind
	id   uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

// Bus is a synchronous typed publish/subscribe hub. Handlers run on the
// publishing goroutine in registration order.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[EventKind][]subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[EventKind][]subscriber)}
}

func (b *Bus) On(kind EventKind, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs[kind] = append(b.subs[kind], subscriber{id: b.next, fn: h})
	return Subscription{kind: kind, id: b.next}
}

// Off detaches one handler. Unknown subscriptions are ignored.
func (b *Bus) Off(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.kind]
	for i, sub := range list {
		if sub.id == s.id {
			b.subs[s.kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// OffAll detaches every handler for kind.
func (b *Bus) OffAll(kind EventKind) {
	b.mu.Lock()
	delete(b.subs, kind)
	b.mu.Unlock()
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	list := append([]subscriber(nil), b.subs[e.Kind]...)
	b.mu.RUnlock()
	for _, s := range list {
		s.fn(e)
	}
}
