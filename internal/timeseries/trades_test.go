package timeseries

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// go test -v --run TestTradeListDedup
func TestTradeListDedup(t *testing.T) {
	l := NewTradeList(50)

	assert.True(t, l.Add(Trade{ID: 1, Price: 10}))
	assert.False(t, l.Add(Trade{ID: 1, Price: 11}))
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 10.0, l.Trades()[0].Price)
}

// go test -v --run TestTradeListNewestFirstAndCapped
func TestTradeListNewestFirstAndCapped(t *testing.T) {
	l := NewTradeList(3)
	for id := int64(1); id <= 5; id++ {
		l.Add(Trade{ID: id})
	}

	got := l.Trades()
	assert.Len(t, got, 3)
	assert.Equal(t, []int64{5, 4, 3}, []int64{got[0].ID, got[1].ID, got[2].ID})

	// an evicted id is accepted again
	assert.True(t, l.Add(Trade{ID: 1}))
	assert.Equal(t, int64(1), l.Trades()[0].ID)
}

// go test -v --run TestTradeListReset
func TestTradeListReset(t *testing.T) {
	l := NewTradeList(0)
	l.Add(Trade{ID: 7})
	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.Add(Trade{ID: 7}))
}

// go test -v --run TestTradeValid
func TestTradeValid(t *testing.T) {
	ok := Trade{ID: 1, Price: 10, Quantity: 0.5, Time: 1700000000000}
	assert.True(t, ok.Valid())

	bad := []Trade{
		{},
		{ID: 1, Price: 10, Quantity: 1},
		{Price: 10, Quantity: 1, Time: 1},
		{ID: 1, Quantity: 1, Time: 1},
		{ID: 1, Price: math.NaN(), Time: 1},
		{ID: 1, Price: 10, Quantity: math.Inf(1), Time: 1},
		{ID: 1, Price: 10, Quantity: -1, Time: 1},
	}
	for _, tr := range bad {
		assert.False(t, tr.Valid(), "%+v", tr)
	}
}
