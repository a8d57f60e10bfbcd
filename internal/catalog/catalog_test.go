package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// go test -v --run TestMapping
func TestMapping(t *testing.T) {
	pair, ok := ShortToPair("btc")
	assert.True(t, ok)
	assert.Equal(t, "btcusdt", pair)

	short, ok := PairToShort("ATOMUSDT")
	assert.True(t, ok)
	assert.Equal(t, "ATOM", short)

	_, ok = ShortToPair("PEPE")
	assert.False(t, ok)
	assert.False(t, IsKnownPair("pepeusdt"))
}

// go test -v --run TestCatalogComplete
func TestCatalogComplete(t *testing.T) {
	assert.Len(t, Tokens(), 15)
	assert.Len(t, Pairs(), 15)
	for _, tok := range Tokens() {
		back, ok := PairToShort(tok.TradingPair)
		assert.True(t, ok)
		assert.Equal(t, tok.Symbol, back)
	}
}
