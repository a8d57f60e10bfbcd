package redis

import (
	"context"
	"testing"
	"time"

	"cryptomirror/config"
	"cryptomirror/pkg/binance"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

// go test -v --run TestNewClientUnreachable
func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

// go test -v --run TestPreferenceStore
func TestPreferenceStore(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	store := NewPreferenceStore(c, "cryptomirror:preferences")

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, []byte(`{"layout":"grid6"}`)))
	data, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"layout":"grid6"}`, string(data))
	assert.Equal(t, time.Duration(0), mr.TTL("cryptomirror:preferences"))

	mr.SetError("READONLY")
	_, _, err = store.Load(ctx)
	assert.Error(t, err)
	assert.Error(t, store.Save(ctx, []byte("{}")))
}

// go test -v --run TestTickerCache
func TestTickerCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	cache := NewTickerCache(c, time.Minute)

	require.NoError(t, cache.StoreTickers(ctx, []binance.Ticker{
		{Symbol: "btcusdt", Price: 43000, PercentChange24h: 1.2, LastUpdated: 1},
		{Symbol: "ETHUSDT", Price: 2300, PercentChange24h: -0.4, LastUpdated: 1},
	}))
	assert.True(t, mr.Exists("ticker:ethusdt"))
	assert.Equal(t, time.Minute, mr.TTL("ticker:btcusdt"))

	require.NoError(t, mr.Set("ticker:solusdt", "garbage"))

	got, err := cache.LoadTickers(ctx, []string{"btcusdt", "ethusdt", "solusdt", "xrpusdt"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 43000.0, got[0].Price)
	assert.Equal(t, "ETHUSDT", got[1].Symbol)

	mr.FastForward(2 * time.Minute)
	got, err = cache.LoadTickers(ctx, []string{"btcusdt"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
