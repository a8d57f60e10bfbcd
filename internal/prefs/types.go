package prefs

import (
	"errors"

	"cryptomirror/pkg/binance"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDefaultWatchlist = errors.New("default watchlist cannot be removed")
	ErrInvalidLayout    = errors.New("invalid layout")
	ErrUnknownToken     = errors.New("unknown token")
	ErrInvalidInput     = errors.New("invalid input")
)

// Layout is the analytics grid arrangement.
type Layout string

const (
	LayoutSingle Layout = "single"
	LayoutSplit2 Layout = "split2"
	LayoutGrid4  Layout = "grid4"
	LayoutGrid6  Layout = "grid6"
)

func (l Layout) IsValid() bool {
	switch l {
	case LayoutSingle, LayoutSplit2, LayoutGrid4, LayoutGrid6:
		return true
	}
	return false
}

type ChartConfig struct {
	ID         string             `json:"id"`
	Symbol     string             `json:"symbol"`
	Resolution binance.Resolution `json:"timeframe"`
}

type Watchlist struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Icon      string   `json:"icon"`
	Symbols   []string `json:"symbols"`
	IsDefault bool     `json:"isDefault"`
	CreatedAt int64    `json:"createdAt"` // ms
}

func (w Watchlist) clone() Watchlist {
	w.Symbols = append([]string{}, w.Symbols...)
	return w
}

func (w Watchlist) has(symbol string) bool {
	for _, s := range w.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// State is everything persisted between runs.
type State struct {
	Layout     Layout        `json:"layout"`
	Charts     []ChartConfig `json:"charts"`
	Watchlists []Watchlist   `json:"watchlists"`
}

func (s State) clone() State {
	out := State{
		Layout:     s.Layout,
		Charts:     append([]ChartConfig{}, s.Charts...),
		Watchlists: make([]Watchlist, len(s.Watchlists)),
	}
	for i, w := range s.Watchlists {
		out.Watchlists[i] = w.clone()
	}
	return out
}

const FavoritesID = "favorites"

var layoutSymbols = []string{"btcusdt", "ethusdt", "solusdt", "bnbusdt", "maticusdt", "avaxusdt"}

var layoutSizes = map[Layout]int{
	LayoutSingle: 1,
	LayoutSplit2: 2,
	LayoutGrid4:  4,
	LayoutGrid6:  6,
}

// DefaultCharts returns the panels a layout starts with.
func DefaultCharts(l Layout) []ChartConfig {
	n, ok := layoutSizes[l]
	if !ok {
		n = 1
	}
	out := make([]ChartConfig, n)
	for i := range out {
		out[i] = ChartConfig{
			ID:         chartID(i),
			Symbol:     layoutSymbols[i],
			Resolution: binance.Resolution1Min,
		}
	}
	return out
}

func chartID(i int) string {
	return "chart-" + string(rune('1'+i))
}

func DefaultWatchlists(nowMs int64) []Watchlist {
	return []Watchlist{
		{
			ID:        FavoritesID,
			Title:     "Favorites",
			Icon:      "⭐",
			Symbols:   []string{"BTC", "ETH", "SOL", "BNB", "XRP"},
			IsDefault: true,
			CreatedAt: nowMs,
		},
		{
			ID:        "defi",
			Title:     "DeFi",
			Icon:      "🚀",
			Symbols:   []string{"AVAX", "MATIC", "LINK", "UNI"},
			CreatedAt: nowMs,
		},
	}
}

func DefaultState(nowMs int64) State {
	return State{
		Layout:     LayoutSingle,
		Charts:     DefaultCharts(LayoutSingle),
		Watchlists: DefaultWatchlists(nowMs),
	}
}
