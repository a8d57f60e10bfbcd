package session

import (
	"context"

	"cryptomirror/internal/timeseries"
	"cryptomirror/pkg/binance"
)

// History serves the bootstrap fetch, oldest bar first.
type History interface {
	Klines(ctx context.Context, symbol string, res binance.Resolution, limit int) ([]timeseries.Bar, error)
}

// Transport is one stream connection. Start must not invoke handlers
// synchronously; Close must be idempotent.
type Transport interface {
	Start(h binance.Handlers)
	Detach()
	Close() error
}

// Dialer constructs transports. An error means the arguments can never
// produce a connection, so callers do not retry it.
type Dialer interface {
	Dial(streams ...string) (Transport, error)
}

// WSDialer adapts a binance.WSDialer to Dialer.
type WSDialer struct {
	*binance.WSDialer
}

func (d WSDialer) Dial(streams ...string) (Transport, error) {
	t, err := d.WSDialer.Dial(streams...)
	if err != nil {
		return nil, err
	}
	return t, nil
}
