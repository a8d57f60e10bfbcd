package timeseries

// DefaultMaxTrades bounds a TradeList built with a non-positive capacity.
const DefaultMaxTrades = 50

// TradeList keeps the most recent trades, newest first, unique by ID.
type TradeList struct {
	capacity int
	trades   []Trade
}

func NewTradeList(capacity int) *TradeList {
	if capacity <= 0 {
		capacity = DefaultMaxTrades
	}
	return &TradeList{capacity: capacity, trades: make([]Trade, 0, capacity)}
}

// Add prepends t and reports false when a trade with the same ID is already held.
func (l *TradeList) Add(t Trade) bool {
	for _, held := range l.trades {
		if held.ID == t.ID {
			return false
		}
	}

	if len(l.trades) < l.capacity {
		l.trades = append(l.trades, Trade{})
	}
	copy(l.trades[1:], l.trades[:len(l.trades)-1])
	l.trades[0] = t
	return true
}

// Trades returns a copy, newest first.
func (l *TradeList) Trades() []Trade {
	cp := make([]Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

func (l *TradeList) Len() int {
	return len(l.trades)
}

func (l *TradeList) Reset() {
	l.trades = l.trades[:0]
}
