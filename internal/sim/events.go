package sim

import (
	"sync"

	"github.com/sandevgo/rumormill/internal/core"
)

const eventBuffer = 64

// eventBus fans simulation events out to transports. Publishing never
// blocks a step: a subscriber that stops draining loses events instead of
// stalling the loop.
type eventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan core.Event
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan core.Event)}
}

// Subscribe registers a listener. The returned cancel func must be called
// exactly once; afterwards the channel is closed.
func (b *eventBus) Subscribe() (<-chan core.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan core.Event, eventBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *eventBus) Publish(ev core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
