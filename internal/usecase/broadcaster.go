package usecase

import (
	"sync"
	"time"

	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/infra/metrics"
)

// broadcaster fans session events out to subscribers. Publish never blocks:
// a subscriber whose buffer is full loses the event.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan model.Event
	nextID int
	buf    int
	closed bool
}

func newBroadcaster(buf int) *broadcaster {
	if buf <= 0 {
		buf = 32
	}
	return &broadcaster{subs: make(map[int]chan model.Event), buf: buf}
}

// Subscribe returns an event channel and its cancel func. After Close the
// returned channel is already closed.
func (b *broadcaster) Subscribe() (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Event, b.buf)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broadcaster) Publish(ev model.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		metrics.IncEventsDropped(dropped)
	}
}

// Close sends final to every subscriber that has room for it, then closes
// all channels. It is safe to call more than once.
func (b *broadcaster) Close(final model.Event) {
	if final.At.IsZero() {
		final.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		select {
		case ch <- final:
		default:
		}
		close(ch)
		delete(b.subs, id)
	}
}

func (b *broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
