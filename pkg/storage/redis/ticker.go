package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cryptomirror/pkg/binance"
)

// TickerCache mirrors the latest 24h tickers under ticker:<symbol> with a TTL,
// so a restarted process has something to show before its first poll.
type TickerCache struct {
	client *Client
	ttl    time.Duration
}

func NewTickerCache(client *Client, ttl time.Duration) *TickerCache {
	return &TickerCache{client: client, ttl: ttl}
}

func tickerKey(symbol string) string {
	return "ticker:" + strings.ToLower(symbol)
}

func (c *TickerCache) StoreTickers(ctx context.Context, tickers []binance.Ticker) error {
	if len(tickers) == 0 {
		return nil
	}

	pipe := c.client.rdb.Pipeline()
	for _, t := range tickers {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode ticker %s: %w", t.Symbol, err)
		}
		pipe.Set(ctx, tickerKey(t.Symbol), data, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store %d tickers: %w", len(tickers), err)
	}
	return nil
}

// LoadTickers returns whatever cached tickers exist for symbols. Missing,
// expired or unreadable entries are skipped.
func (c *TickerCache) LoadTickers(ctx context.Context, symbols []string) ([]binance.Ticker, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = tickerKey(s)
	}

	vals, err := c.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tickers: %w", err)
	}

	out := make([]binance.Ticker, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var t binance.Ticker
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
