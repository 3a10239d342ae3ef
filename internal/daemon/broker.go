package daemon

import (
	"sync"

	"github.com/pinsync/pinsync/internal/schema"
)

// Broker fans status snapshots out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the update and is expected to ask
// for the current status when it catches up.
type Broker struct {
	mu     sync.Mutex
	subs   map[chan schema.SyncStatus]struct{}
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan schema.SyncStatus]struct{})}
}

// Subscribe registers a listener with the given buffer size (minimum 1). The
// returned cancel func unregisters it and closes the channel.
func (b *Broker) Subscribe(buffer int) (<-chan schema.SyncStatus, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan schema.SyncStatus, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish delivers a copy of status to every subscriber with room for it.
// It returns how many subscribers received it.
func (b *Broker) Publish(status schema.SyncStatus) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for ch := range b.subs {
		select {
		case ch <- status.Clone():
			delivered++
		default:
		}
	}
	return delivered
}

// Len returns the number of subscribers.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unregisters and closes every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
