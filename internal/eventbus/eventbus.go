package eventbus

import (
	"sync"

	"github.com/ethDreamer/lighthouse/types"
)

// Event is the union of events flowing between subsystems. The set is small
// and assembly-visible only; consensus-internal events stay inside the chain
// engine.
type Event interface {
	eventType() string
}

// EventNewHead is published by the chain engine whenever its head advances.
type EventNewHead struct {
	Head types.Head
}

// EventBlockImported is published after a block has been persisted.
type EventBlockImported struct {
	Root  types.Root
	Block *types.BeaconBlock
}

// EventSlashing is published by the slasher when it detects a violation.
type EventSlashing struct {
	ProposerIndex uint64
	Slot          uint64
}

func (EventNewHead) eventType() string       { return "new_head" }
func (EventBlockImported) eventType() string { return "block_imported" }
func (EventSlashing) eventType() string      { return "slashing" }

// Type returns a stable name for an event, used by the HTTP event stream.
func Type(ev Event) string { return ev.eventType() }

// Subscription receives events on C until Cancel is called. A subscriber
// that falls behind its buffer loses events rather than back-pressuring
// publishers.
type Subscription struct {
	C <-chan Event

	id  int
	bus *EventBus
}

// Cancel removes the subscription and closes C.
func (s *Subscription) Cancel() {
	s.bus.unsubscribe(s.id)
}

// EventBus is a lightweight in-process fan-out connecting the chain engine to
// the HTTP event stream, the slasher and the monitoring client.
type EventBus struct {
	mtx    sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func New() *EventBus {
	return &EventBus{
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *EventBus) Subscribe(buffer int) *Subscription {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	return &Subscription{C: ch, id: id, bus: b}
}

func (b *EventBus) unsubscribe(id int) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *EventBus) Publish(ev Event) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; drop
		}
	}
}

// NumSubscribers returns the current subscriber count.
func (b *EventBus) NumSubscribers() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.subs)
}
