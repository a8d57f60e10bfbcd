package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cryptomirror/internal/timeseries"
)

// ErrMalformed marks a stream message that could not be decoded.
var ErrMalformed = errors.New("malformed stream message")

type UpdateKind int

const (
	KindUnknown UpdateKind = iota
	KindKline
	KindTrade
)

func (k UpdateKind) String() string {
	switch k {
	case KindKline:
		return "kline"
	case KindTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Update is a decoded combined-stream message. Symbol comes from the stream
// name, lowercase; Resolution is set for klines only.
type Update struct {
	Kind       UpdateKind
	Stream     string
	Symbol     string
	Resolution Resolution
	Bar        timeseries.Bar
	Trade      timeseries.Trade
}

// KlineStream names the kline stream for symbol at res, e.g. "btcusdt@kline_1m".
func KlineStream(symbol string, res Resolution) string {
	return fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), res)
}

// TradeStream names the raw trade stream for symbol, e.g. "btcusdt@trade".
func TradeStream(symbol string) string {
	return strings.ToLower(symbol) + "@trade"
}

// ParseStreamMessage decodes one combined-stream frame. Frames for stream
// kinds other than kline and trade decode to KindUnknown without error.
func ParseStreamMessage(msg []byte) (Update, error) {
	var env StreamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Stream == "" || len(env.Data) == 0 {
		return Update{}, fmt.Errorf("%w: missing stream or data", ErrMalformed)
	}

	symbol, kind, ok := strings.Cut(env.Stream, "@")
	if !ok || symbol == "" {
		return Update{}, fmt.Errorf("%w: stream name %q", ErrMalformed, env.Stream)
	}
	u := Update{Stream: env.Stream, Symbol: strings.ToLower(symbol)}

	switch {
	case kind == "trade":
		var ev TradeEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return Update{}, fmt.Errorf("%w: trade payload: %v", ErrMalformed, err)
		}
		u.Kind = KindTrade
		u.Trade = ev.Trade()
		if !u.Trade.Valid() {
			return Update{}, fmt.Errorf("%w: %v", ErrMalformed, timeseries.ErrInvalidTrade)
		}

	case strings.HasPrefix(kind, "kline_"):
		var ev KlineEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return Update{}, fmt.Errorf("%w: kline payload: %v", ErrMalformed, err)
		}
		u.Kind = KindKline
		u.Resolution = Resolution(strings.TrimPrefix(kind, "kline_"))
		u.Bar = ev.Kline.Bar()
		if !u.Bar.Valid() {
			return Update{}, fmt.Errorf("%w: %v", ErrMalformed, timeseries.ErrInvalidBar)
		}
	}

	return u, nil
}
