package feed

import "sync"

// Bus carries the "liked state may have changed" signal to every feed view.
//
// Signals have no payload and coalesce: a subscriber that hasn't drained its
// channel yet gets one pending signal no matter how many were published.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]chan struct{}
}

func NewBus() *Bus {
	return &Bus{subs: map[uint64]chan struct{}{}}
}

// Subscribe returns the signal channel and a func to stop receiving on it.
// The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish never blocks.
func (b *Bus) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default: // One is already pending
		}
	}
}

// Subscribers is the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}
