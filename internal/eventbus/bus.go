// Package eventbus is a small in-memory fanout used to decouple components.
// Publishers never block: a subscriber that falls behind loses events rather
// than stalling the publisher.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight signal. Data should stay small and JSON-friendly so
// audit sinks can persist it as-is.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped reports how many events were discarded because a subscriber's
	// buffer was full. Operational signal only.
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so no lock is held during channel sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		b.deliver(ch, e)
	}
}

// deliver attempts a non-blocking send. A concurrent unsubscribe may close the
// channel mid-send, so the panic is absorbed here.
func (b *memBus) deliver(ch chan Event, e Event) {
	defer func() {
		if recover() != nil {
			b.dropped.Add(1)
		}
	}()
	select {
	case ch <- e:
	default:
		b.dropped.Add(1)
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Safe because deliver absorbs the closed-channel panic.
			close(ch)
		})
	}
	return ch, unsub
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
