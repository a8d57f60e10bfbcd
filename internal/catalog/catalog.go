package catalog

import "strings"

// Token is a tradable asset offered in watchlists and the symbol picker.
type Token struct {
	Symbol      string `json:"symbol"`      // short ticker, e.g. "BTC"
	Name        string `json:"name"`
	TradingPair string `json:"tradingPair"` // lowercase stream pair, e.g. "btcusdt"
}

var tokens = []Token{
	{Symbol: "BTC", Name: "Bitcoin", TradingPair: "btcusdt"},
	{Symbol: "ETH", Name: "Ethereum", TradingPair: "ethusdt"},
	{Symbol: "SOL", Name: "Solana", TradingPair: "solusdt"},
	{Symbol: "BNB", Name: "Binance Coin", TradingPair: "bnbusdt"},
	{Symbol: "XRP", Name: "Ripple", TradingPair: "xrpusdt"},
	{Symbol: "ADA", Name: "Cardano", TradingPair: "adausdt"},
	{Symbol: "DOGE", Name: "Dogecoin", TradingPair: "dogeusdt"},
	{Symbol: "MATIC", Name: "Polygon", TradingPair: "maticusdt"},
	{Symbol: "DOT", Name: "Polkadot", TradingPair: "dotusdt"},
	{Symbol: "AVAX", Name: "Avalanche", TradingPair: "avaxusdt"},
	{Symbol: "LINK", Name: "Chainlink", TradingPair: "linkusdt"},
	{Symbol: "UNI", Name: "Uniswap", TradingPair: "uniusdt"},
	{Symbol: "LTC", Name: "Litecoin", TradingPair: "ltcusdt"},
	{Symbol: "TRX", Name: "Tron", TradingPair: "trxusdt"},
	{Symbol: "ATOM", Name: "Cosmos", TradingPair: "atomusdt"},
}

var (
	byShort = make(map[string]Token, len(tokens))
	byPair  = make(map[string]Token, len(tokens))
)

func init() {
	for _, t := range tokens {
		byShort[t.Symbol] = t
		byPair[t.TradingPair] = t
	}
}

// Tokens returns the catalog in display order.
func Tokens() []Token {
	return append([]Token(nil), tokens...)
}

// Pairs returns every trading pair, lowercase.
func Pairs() []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.TradingPair
	}
	return out
}

// ShortToPair maps "btc" or "BTC" to "btcusdt".
func ShortToPair(short string) (string, bool) {
	t, ok := byShort[strings.ToUpper(strings.TrimSpace(short))]
	return t.TradingPair, ok
}

// PairToShort maps "BTCUSDT" or "btcusdt" to "BTC".
func PairToShort(pair string) (string, bool) {
	t, ok := byPair[strings.ToLower(strings.TrimSpace(pair))]
	return t.Symbol, ok
}

func IsKnownShort(short string) bool {
	_, ok := ShortToPair(short)
	return ok
}

func IsKnownPair(pair string) bool {
	_, ok := PairToShort(pair)
	return ok
}
