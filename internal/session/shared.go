package session

import (
	"cryptomirror/pkg/binance"

	"go.uber.org/zap"
)

// SharedSession is the single "current instrument" session. It streams trades
// alongside klines and is reused across symbol switches instead of being
// rebuilt.
type SharedSession struct {
	s *Session
}

func NewShared(symbol string, res binance.Resolution, history History, dialer Dialer, opts Options, logger *zap.Logger) *SharedSession {
	key := Key{Symbol: symbol, Resolution: res}
	return &SharedSession{s: newSession(key, history, dialer, opts, true, logger.Named("shared"))}
}

// Start bootstraps the current symbol and connects.
func (m *SharedSession) Start() error {
	return m.s.Start()
}

// SetSymbol tears down the current stream and bootstraps symbol. Setting the
// symbol already in use is a no-op; the bool reports whether a switch happened.
func (m *SharedSession) SetSymbol(symbol string) (bool, error) {
	return m.s.retarget(symbol)
}

func (m *SharedSession) Symbol() string {
	return m.s.Key().Symbol
}

func (m *SharedSession) Snapshot() Snapshot {
	return m.s.Snapshot()
}

func (m *SharedSession) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return m.s.Subscribe(fn)
}

// Close disposes the session.
func (m *SharedSession) Close() {
	m.s.Dispose()
}
