package session

import "time"

const (
	DefaultReconnectInitial = time.Second
	DefaultReconnectMax     = 30 * time.Second
)

// Backoff yields reconnect delays that double from Initial up to Max.
// Initial == Max gives a fixed delay.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultReconnectInitial
	}
	if max < initial {
		max = initial
	}
	return &Backoff{Initial: initial, Max: max, next: initial}
}

// Next returns the delay for the coming attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.Max || b.next <= 0 {
		b.next = b.Max
	}
	return d
}

// Reset restarts the schedule, on a successful open.
func (b *Backoff) Reset() {
	b.next = b.Initial
}
