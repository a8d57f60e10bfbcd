package binance

import (
	"encoding/json"
	"fmt"

	"cryptomirror/internal/timeseries"

	"github.com/shopspring/decimal"
)

// ParseKlineRows converts GET /api/v3/klines rows to bars. A row is
// [openTime, open, high, low, close, volume, closeTime, ...] with prices as
// strings. Rows that cannot be decoded are skipped and counted.
func ParseKlineRows(raw []json.RawMessage) ([]timeseries.Bar, int) {
	out := make([]timeseries.Bar, 0, len(raw))
	skipped := 0

	for _, r := range raw {
		b, err := parseKlineRow(r)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, b)
	}
	return out, skipped
}

func parseKlineRow(raw json.RawMessage) (timeseries.Bar, error) {
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return timeseries.Bar{}, err
	}
	if len(row) < 6 {
		return timeseries.Bar{}, fmt.Errorf("incomplete kline row: %d fields", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return timeseries.Bar{}, fmt.Errorf("open time: %w", err)
	}

	var vals [5]float64
	for i := range vals {
		var d decimal.Decimal
		if err := d.UnmarshalJSON(row[i+1]); err != nil {
			return timeseries.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i], _ = d.Float64()
	}

	b := timeseries.Bar{
		Time:   openTime / 1000,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}
	if !b.Valid() {
		return timeseries.Bar{}, timeseries.ErrInvalidBar
	}
	return b, nil
}

// Bar converts a streamed kline to the seconds-based bar model.
func (k KlinePayload) Bar() timeseries.Bar {
	f := func(d decimal.Decimal) float64 {
		v, _ := d.Float64()
		return v
	}
	return timeseries.Bar{
		Time:   k.StartTime / 1000,
		Open:   f(k.Open),
		High:   f(k.High),
		Low:    f(k.Low),
		Close:  f(k.Close),
		Volume: f(k.Volume),
	}
}

// Trade converts a streamed trade to the trade model. Time stays in milliseconds.
func (e TradeEvent) Trade() timeseries.Trade {
	price, _ := e.Price.Float64()
	qty, _ := e.Quantity.Float64()
	return timeseries.Trade{
		ID:           e.TradeID,
		Price:        price,
		Quantity:     qty,
		Time:         e.TradeTime,
		IsBuyerMaker: e.IsBuyerMaker,
	}
}
