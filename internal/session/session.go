package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cryptomirror/internal/common"
	"cryptomirror/internal/timeseries"
	"cryptomirror/pkg/binance"

	"go.uber.org/zap"
)

// ErrDisposed is returned by operations on a disposed session.
var ErrDisposed = errors.New("session disposed")

// Key identifies one streamed series.
type Key struct {
	Symbol     string             `json:"symbol"`
	Resolution binance.Resolution `json:"resolution"`
}

func (k Key) Normalize() Key {
	return Key{Symbol: strings.ToLower(strings.TrimSpace(k.Symbol)), Resolution: k.Resolution}
}

func (k Key) String() string {
	return k.Symbol + "/" + string(k.Resolution)
}

func (k Key) Validate() error {
	if k.Symbol == "" {
		return errors.New("empty symbol")
	}
	if !k.Resolution.IsValid() {
		return fmt.Errorf("invalid resolution %q", k.Resolution)
	}
	return nil
}

type Options struct {
	MaxBars          int
	MaxTrades        int
	BootstrapLimit   int // 0 uses the resolution's bootstrap depth
	BootstrapTimeout time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Clock            Clock
}

func (o Options) withDefaults() Options {
	if o.MaxBars <= 0 {
		o.MaxBars = timeseries.DefaultMaxBars
	}
	if o.MaxTrades <= 0 {
		o.MaxTrades = timeseries.DefaultMaxTrades
	}
	if o.BootstrapTimeout <= 0 {
		o.BootstrapTimeout = 15 * time.Second
	}
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = DefaultReconnectInitial
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = DefaultReconnectMax
	}
	if o.Clock == nil {
		o.Clock = RealClock
	}
	return o
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	Seq        uint64                  `json:"seq"`
	Symbol     string                  `json:"symbol"`
	Resolution binance.Resolution      `json:"resolution"`
	Status     Status                  `json:"status"`
	Phase      Phase                   `json:"phase"`
	Loading    bool                    `json:"loading"`
	Price      *float64                `json:"price"`
	Change     *timeseries.PriceChange `json:"change"`
	Bars       []timeseries.Bar        `json:"bars"`
	Trades     []timeseries.Trade      `json:"trades,omitempty"`
	LastError  string                  `json:"lastError,omitempty"`
}

// Session mirrors one (symbol, resolution) series: a history bootstrap
// followed by a live stream with reconnects. Every asynchronous callback
// captures the generation it was scheduled under and is ignored once the
// generation moves on.
type Session struct {
	history History
	dialer  Dialer
	opts    Options
	logger  *zap.Logger
	bc      *Broadcaster[Snapshot]

	mu        sync.Mutex
	key       Key
	gen       uint64
	seq       uint64
	started   bool
	disposed  bool
	phase     Phase
	status    Status
	loading   bool
	store     *timeseries.Store
	trades    *timeseries.TradeList // nil unless trade streaming is enabled
	price     float64
	hasPrice  bool
	lastErr   string
	backoff   *Backoff
	transport Transport
	retry     Timer
	cancel    context.CancelFunc
}

// New builds an idle chart session. Nothing happens until Start.
func New(key Key, history History, dialer Dialer, opts Options, logger *zap.Logger) *Session {
	return newSession(key, history, dialer, opts, false, logger)
}

func newSession(key Key, history History, dialer Dialer, opts Options, withTrades bool, logger *zap.Logger) *Session {
	opts = opts.withDefaults()
	key = key.Normalize()

	s := &Session{
		history: history,
		dialer:  dialer,
		opts:    opts,
		logger:  logger,
		bc:      NewBroadcaster[Snapshot](),
		key:     key,
		phase:   PhaseIdle,
		status:  StatusDisconnected,
		store:   timeseries.NewStore(opts.MaxBars),
		backoff: NewBackoff(opts.ReconnectInitial, opts.ReconnectMax),
	}
	if withTrades {
		s.trades = timeseries.NewTradeList(opts.MaxTrades)
	}
	return s
}

func (s *Session) Key() Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func (s *Session) log() *zap.Logger {
	return s.logger.With(zap.String("symbol", s.key.Symbol), zap.String("resolution", string(s.key.Resolution)), zap.Uint64("gen", s.gen))
}

// Start begins the bootstrap; the stream connects once it completes,
// whether or not history loaded. Calling Start again is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.beginBootstrapLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.bc.Publish(snap.Seq, snap)
	return nil
}

func (s *Session) beginBootstrapLocked() {
	s.phase = PhaseBootstrapping
	s.loading = true

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.BootstrapTimeout)
	s.cancel = cancel

	key, gen := s.key, s.gen
	limit := s.opts.BootstrapLimit
	if limit <= 0 {
		limit = key.Resolution.BootstrapBars()
	}
	if limit > s.opts.MaxBars {
		limit = s.opts.MaxBars
	}

	go s.bootstrap(ctx, key, gen, limit)
}

func (s *Session) bootstrap(ctx context.Context, key Key, gen uint64, limit int) {
	defer s.recoverPanic("bootstrap")

	bars, err := s.history.Klines(ctx, key.Symbol, key.Resolution, limit)

	s.mu.Lock()
	if s.disposed || s.gen != gen || s.key != key {
		s.mu.Unlock()
		s.logger.Debug("discarding stale bootstrap", zap.String("symbol", key.Symbol), zap.Uint64("gen", gen))
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if err != nil {
		s.lastErr = err.Error()
		s.log().Warn(common.ErrMsgBootstrapFailed.String(), common.Code(common.ErrCodeBootstrapFailed), zap.Error(err))
	} else {
		if dropped := s.store.Seed(bars); dropped > 0 {
			s.log().Warn(common.ErrMsgMalformedMessage.String(), common.Code(common.ErrCodeMalformedMessage), zap.Int("dropped", dropped))
		}
		if last, ok := s.store.Last(); ok {
			s.price, s.hasPrice = last.Close, true
		}
		s.log().Info("history loaded", zap.Int("bars", s.store.Len()))
	}

	s.loading = false
	s.phase = PhaseLive
	s.connectLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.bc.Publish(snap.Seq, snap)
}

func (s *Session) streams() []string {
	streams := make([]string, 0, 2)
	if s.trades != nil {
		streams = append(streams, binance.TradeStream(s.key.Symbol))
	}
	return append(streams, binance.KlineStream(s.key.Symbol, s.key.Resolution))
}

func (s *Session) connectLocked() {
	t, err := s.dialer.Dial(s.streams()...)
	if err != nil {
		s.status = StatusError
		s.lastErr = err.Error()
		s.log().Error(common.ErrMsgDialFailed.String(), common.Code(common.ErrCodeDialFailed), zap.Error(err))
		return
	}

	s.transport = t
	s.status = StatusConnecting
	gen := s.gen

	t.Start(binance.Handlers{
		OnOpen:    func() { s.onOpen(gen, t) },
		OnMessage: func(msg []byte) { s.onMessage(gen, t, msg) },
		OnError:   func(err error) { s.onError(gen, t, err) },
		OnClose:   func(err error) { s.onClose(gen, t, err) },
	})
}

// currentLocked reports whether a callback from transport t scheduled under
// gen still belongs to the live connection.
func (s *Session) currentLocked(gen uint64, t Transport) bool {
	return !s.disposed && s.gen == gen && s.transport == t
}

func (s *Session) onOpen(gen uint64, t Transport) {
	defer s.recoverPanic("open")

	s.mu.Lock()
	if !s.currentLocked(gen, t) {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnected
	s.lastErr = ""
	s.backoff.Reset()
	s.log().Info("stream connected")
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.bc.Publish(snap.Seq, snap)
}

func (s *Session) onMessage(gen uint64, t Transport, msg []byte) {
	defer s.recoverPanic("message")

	u, perr := binance.ParseStreamMessage(msg)

	s.mu.Lock()
	if !s.currentLocked(gen, t) {
		s.mu.Unlock()
		return
	}
	if perr != nil {
		s.log().Warn(common.ErrMsgMalformedMessage.String(), common.Code(common.ErrCodeMalformedMessage), zap.Error(perr))
		s.mu.Unlock()
		return
	}
	if !s.applyLocked(u) {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.bc.Publish(snap.Seq, snap)
}

// applyLocked merges one update and reports whether state changed.
func (s *Session) applyLocked(u binance.Update) bool {
	if u.Symbol != s.key.Symbol {
		return false
	}

	switch u.Kind {
	case binance.KindKline:
		if u.Resolution != s.key.Resolution {
			return false
		}
		price, err := s.store.Upsert(u.Bar)
		if err != nil {
			return false
		}
		s.price, s.hasPrice = price, true
		return true

	case binance.KindTrade:
		if s.trades == nil || !s.trades.Add(u.Trade) {
			return false
		}
		s.price, s.hasPrice = u.Trade.Price, true
		return true
	}
	return false
}

func (s *Session) onError(gen uint64, t Transport, err error) {
	defer s.recoverPanic("error")

	s.mu.Lock()
	if !s.currentLocked(gen, t) {
		s.mu.Unlock()
		return
	}
	s.status = StatusError
	if err != nil {
		s.lastErr = err.Error()
	}
	s.log().Warn(common.ErrMsgTransportFailed.String(), common.Code(common.ErrCodeTransportFailed), zap.Error(err))
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.bc.Publish(snap.Seq, snap)
}

func (s *Session) onClose(gen uint64, t Transport, err error) {
	defer s.recoverPanic("close")

	s.mu.Lock()
	if !s.currentLocked(gen, t) {
		s.mu.Unlock()
		return
	}
	t.Detach()
	s.transport = nil
	s.status = StatusDisconnected

	delay := s.backoff.Next()
	s.retry = s.opts.Clock.AfterFunc(delay, func() { s.reconnect(gen) })
	s.log().Info("stream closed, reconnect scheduled", zap.Duration("delay", delay), zap.Error(err))
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.closeTransport(t)
	s.bc.Publish(snap.Seq, snap)
}

func (s *Session) reconnect(gen uint64) {
	defer s.recoverPanic("reconnect")

	s.mu.Lock()
	if s.disposed || s.gen != gen || s.transport != nil {
		s.mu.Unlock()
		return
	}
	s.retry = nil
	s.connectLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.bc.Publish(snap.Seq, snap)
}

// teardownLocked invalidates every outstanding callback and detaches the
// live transport. The caller closes the returned transport after unlocking.
func (s *Session) teardownLocked() Transport {
	s.gen++

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}

	t := s.transport
	s.transport = nil
	if t != nil {
		t.Detach()
	}
	return t
}

func (s *Session) closeTransport(t Transport) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		s.logger.Debug(common.ErrMsgTransportCloseFail.String(), common.Code(common.ErrCodeTransportCloseFail), zap.Error(err))
	}
}

// Dispose stops the session for good. It is safe to call more than once.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	t := s.teardownLocked()
	s.phase = PhaseDisposed
	s.log().Debug("session disposed")
	final := s.snapshotLocked()
	s.mu.Unlock()

	s.closeTransport(t)
	// subscribers see the disposed phase once, then nothing
	s.bc.Publish(final.Seq, final)
	s.bc.Close()
}

// retarget switches the session to symbol, discarding all state tied to the
// previous one. It reports false when nothing changed.
func (s *Session) retarget(symbol string) (bool, error) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if symbol == "" {
		return false, errors.New("empty symbol")
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false, ErrDisposed
	}
	if symbol == s.key.Symbol {
		s.mu.Unlock()
		return false, nil
	}

	t := s.teardownLocked()
	prev := s.key.Symbol
	s.key.Symbol = symbol

	s.store.Reset()
	if s.trades != nil {
		s.trades.Reset()
	}
	s.price, s.hasPrice = 0, false
	s.lastErr = ""
	s.status = StatusDisconnected
	s.backoff.Reset()

	if s.started {
		s.beginBootstrapLocked()
	} else {
		s.loading = true
	}
	s.log().Info("symbol switched", zap.String("from", prev))
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.closeTransport(t)
	s.bc.Publish(snap.Seq, snap)
	return true, nil
}

// snapshotLocked advances the sequence for a state change about to be published.
func (s *Session) snapshotLocked() Snapshot {
	s.seq++
	return s.viewLocked()
}

func (s *Session) viewLocked() Snapshot {
	snap := Snapshot{
		Seq:        s.seq,
		Symbol:     s.key.Symbol,
		Resolution: s.key.Resolution,
		Status:     s.status,
		Phase:      s.phase,
		Loading:    s.loading,
		Bars:       s.store.Bars(),
		LastError:  s.lastErr,
	}
	if s.hasPrice {
		p := s.price
		snap.Price = &p
	}
	if pc, ok := s.store.PriceChange(); ok {
		snap.Change = &pc
	}
	if s.trades != nil {
		snap.Trades = s.trades.Trades()
	}
	return snap
}

// Snapshot returns the current state. It carries the sequence of the last
// published change and never advances it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Subscribe calls fn with every newer snapshot until the returned func is
// called or the session is disposed.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.bc.Subscribe(fn)
}

func (s *Session) recoverPanic(where string) {
	if r := recover(); r != nil {
		s.logger.Error(common.ErrMsgHandlerPanic.String(),
			common.Code(common.ErrCodeHandlerPanic),
			zap.String("callback", where),
			zap.Any("panic", r))
	}
}
