package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// go test -v --run TestKlines
func TestKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "288", r.URL.Query().Get("limit"))

		_, _ = w.Write([]byte(`[
			[1700000000000,"100.5","101","99.5","100.8","12.5",1700000299999,"0",10,"0","0","0"],
			[1700000300000,"100.8","102","100","101.5","8",1700000599999,"0",7,"0","0","0"],
			[1700000600000,"bad","102","100","101.5","8"],
			[1700000900000,"1"]
		]`))
	}))
	defer srv.Close()

	core, logs := observer.New(zap.WarnLevel)
	client := NewRESTClient(srv.URL, 5*time.Second, zap.New(core))
	bars, err := client.Klines(context.Background(), "btcusdt", Resolution5Min, Resolution5Min.BootstrapBars())
	require.NoError(t, err)

	// the two bad rows are reported once
	entries := logs.FilterField(zap.String("error_code", "MALFORMED_MESSAGE")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["skipped"])

	require.Len(t, bars, 2)
	assert.Equal(t, int64(1700000000), bars[0].Time)
	assert.Equal(t, 100.5, bars[0].Open)
	assert.Equal(t, 100.8, bars[0].Close)
	assert.Equal(t, 12.5, bars[0].Volume)
	assert.Equal(t, int64(1700000300), bars[1].Time)
}

// go test -v --run TestKlinesAPIError
func TestKlinesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, 5*time.Second, zap.NewNop())
	_, err := client.Klines(context.Background(), "nope", Resolution1Min, 10)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, -1121, apiErr.Code)
	assert.Equal(t, "Invalid symbol.", apiErr.Message)
}

// go test -v --run TestKlinesEmptyIsNotError
func TestKlinesEmptyIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	bars, err := NewRESTClient(srv.URL, time.Second, zap.NewNop()).Klines(context.Background(), "btcusdt", Resolution1Min, 10)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

// go test -v --run TestTickers24h
func TestTickers24h(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Equal(t, `["BTCUSDT","ETHUSDT"]`, r.URL.Query().Get("symbols"))

		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"43000.10","priceChange":"100","priceChangePercent":"1.25"},
			{"symbol":"ETHUSDT","lastPrice":"2300.5","priceChange":"-10","priceChangePercent":"-0.43"}
		]`))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, 5*time.Second, zap.NewNop())
	client.now = func() time.Time { return time.UnixMilli(1700000000000) }

	tickers, err := client.Tickers24h(context.Background(), []string{"btcusdt", "ethusdt"})
	require.NoError(t, err)
	require.Len(t, tickers, 2)

	assert.Equal(t, Ticker{Symbol: "btcusdt", Price: 43000.10, PercentChange24h: 1.25, LastUpdated: 1700000000000}, tickers[0])
	assert.Equal(t, -0.43, tickers[1].PercentChange24h)
}

// go test -v --run TestTickers24hTimeout
func TestTickers24hTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewRESTClient(srv.URL, time.Second, zap.NewNop()).Tickers24h(ctx, []string{"btcusdt"})
	require.Error(t, err)
}
