package session

import (
	"sync"
	"sync/atomic"
)

// Broadcaster fans sequenced values out to subscribers. A value whose
// sequence is not newer than the last delivered one is dropped, so
// subscribers never observe state going backwards. Callbacks run
// synchronously on the publishing goroutine and must not call Publish.
type Broadcaster[T any] struct {
	deliverMu sync.Mutex
	last      uint64
	closed    atomic.Bool

	subsMu sync.Mutex
	nextID int
	subs   map[int]func(T)
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns a func that removes it.
func (b *Broadcaster[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.subsMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs, id)
			b.subsMu.Unlock()
		})
	}
}

// Publish delivers v if seq is newer than anything delivered so far and
// reports whether it did.
func (b *Broadcaster[T]) Publish(seq uint64, v T) bool {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	if b.closed.Load() || seq <= b.last {
		return false
	}
	b.last = seq

	b.subsMu.Lock()
	fns := make([]func(T), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.subsMu.Unlock()

	for _, fn := range fns {
		if b.closed.Load() {
			break
		}
		fn(v)
	}
	return true
}

// Close stops all further delivery and drops subscribers. It may be called
// from inside a callback.
func (b *Broadcaster[T]) Close() {
	b.closed.Store(true)

	b.subsMu.Lock()
	clear(b.subs)
	b.subsMu.Unlock()
}

func (b *Broadcaster[T]) Len() int {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	return len(b.subs)
}
