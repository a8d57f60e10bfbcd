package binance

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// StreamEnvelope wraps every message on a combined stream connection.
type StreamEnvelope struct {
	Stream string          `json:"stream"` // e.g. "btcusdt@kline_1m"
	Data   json.RawMessage `json:"data"`   // delay decoding until the stream kind is known
}

// KlineEvent is the payload of a <symbol>@kline_<interval> stream.
type KlineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     KlinePayload `json:"k"`
}

type KlinePayload struct {
	StartTime int64           `json:"t"` // ms
	CloseTime int64           `json:"T"` // ms
	Symbol    string          `json:"s"`
	Interval  string          `json:"i"`
	Open      decimal.Decimal `json:"o"`
	Close     decimal.Decimal `json:"c"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Volume    decimal.Decimal `json:"v"`
	Closed    bool            `json:"x"`
}

// TradeEvent is the payload of a <symbol>@trade stream.
type TradeEvent struct {
	EventType    string          `json:"e"`
	EventTime    int64           `json:"E"`
	Symbol       string          `json:"s"`
	TradeID      int64           `json:"t"`
	Price        decimal.Decimal `json:"p"`
	Quantity     decimal.Decimal `json:"q"`
	TradeTime    int64           `json:"T"` // ms
	IsBuyerMaker bool            `json:"m"`
}

// Ticker24hResponse is one element of GET /api/v3/ticker/24hr.
type Ticker24hResponse struct {
	Symbol             string          `json:"symbol"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	CloseTime          int64           `json:"closeTime"`
}

// Ticker is the normalized 24h summary for one symbol.
type Ticker struct {
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	PercentChange24h float64 `json:"change24h"`
	LastUpdated      int64   `json:"lastUpdated"` // ms
}

// errorBody is the error envelope returned with non-2xx responses.
type errorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
