package timeseries

import (
	"math"
	"sort"
)

// DefaultMaxBars is the window kept when a store is built with a non-positive capacity.
const DefaultMaxBars = 500

// Store holds one instrument's bars ordered by time, unique per time and
// bounded to the most recent capacity entries. It is not safe for concurrent
// use; the owning session serializes access.
type Store struct {
	capacity int
	bars     []Bar
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultMaxBars
	}
	return &Store{
		capacity: capacity,
		bars:     make([]Bar, 0, capacity),
	}
}

// Seed replaces the series with a bootstrap snapshot and returns how many
// input bars were dropped as malformed. Duplicate times keep the last
// occurrence in input order.
func (s *Store) Seed(bars []Bar) int {
	byTime := make(map[int64]int, len(bars))
	out := make([]Bar, 0, len(bars))
	dropped := 0

	for _, b := range bars {
		if !b.Valid() {
			dropped++
			continue
		}
		if i, ok := byTime[b.Time]; ok {
			out[i] = b
			continue
		}
		byTime[b.Time] = len(out)
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	s.bars = s.bars[:0]
	s.bars = append(s.bars, out...)
	s.trim()
	return dropped
}

// Upsert merges a live bar: an equal time replaces in place, otherwise the bar
// is inserted at its ordered position and the oldest bars beyond capacity are
// evicted. It returns the resulting current price.
func (s *Store) Upsert(b Bar) (float64, error) {
	if !b.Valid() {
		return 0, ErrInvalidBar
	}

	i := sort.Search(len(s.bars), func(i int) bool { return s.bars[i].Time >= b.Time })
	switch {
	case i < len(s.bars) && s.bars[i].Time == b.Time:
		s.bars[i] = b
	case i == len(s.bars):
		s.bars = append(s.bars, b)
	default:
		s.bars = append(s.bars, Bar{})
		copy(s.bars[i+1:], s.bars[i:])
		s.bars[i] = b
	}
	s.trim()

	return b.Close, nil
}

func (s *Store) trim() {
	if over := len(s.bars) - s.capacity; over > 0 {
		s.bars = append(s.bars[:0], s.bars[over:]...)
	}
}

// PriceChange reports lastClose - firstOpen over the held window. It needs at
// least two bars and a non-zero first open.
func (s *Store) PriceChange() (PriceChange, bool) {
	if len(s.bars) < 2 {
		return PriceChange{}, false
	}
	first := s.bars[0].Open
	if first == 0 {
		return PriceChange{}, false
	}

	change := s.bars[len(s.bars)-1].Close - first
	pct := change / first * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return PriceChange{}, false
	}
	return PriceChange{Change: change, Percent: pct}, true
}

// Bars returns a copy of the series, oldest first.
func (s *Store) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

func (s *Store) Len() int {
	return len(s.bars)
}

// Last returns the open (most recent) bar.
func (s *Store) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) Reset() {
	s.bars = s.bars[:0]
}
