package timeseries

import (
	"errors"
	"math"
)

// ErrInvalidBar is returned for bars with a non-positive time or non-finite values.
var ErrInvalidBar = errors.New("timeseries: invalid bar")

// ErrInvalidTrade is returned for trades without an id, time or positive price.
var ErrInvalidTrade = errors.New("timeseries: invalid trade")

// Bar is one OHLCV candle. Time is the bar open in Unix seconds (UTC).
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Valid reports whether the bar can enter a series.
func (b Bar) Valid() bool {
	if b.Time <= 0 {
		return false
	}
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Trade is a single public trade. Time is in Unix milliseconds.
type Trade struct {
	ID           int64   `json:"id"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Time         int64   `json:"time"`
	IsBuyerMaker bool    `json:"isBuyerMaker"`
}

// Valid reports whether the trade can enter a trade list.
func (t Trade) Valid() bool {
	switch {
	case t.ID <= 0, t.Time <= 0:
		return false
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0:
		return false
	case math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) || t.Quantity < 0:
		return false
	}
	return true
}

// PriceChange is the move from the first bar's open to the last bar's close.
type PriceChange struct {
	Change  float64 `json:"change"`
	Percent float64 `json:"percent"`
}
