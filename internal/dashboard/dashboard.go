package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cryptomirror/config"
	"cryptomirror/internal/catalog"
	"cryptomirror/internal/common"
	"cryptomirror/internal/prefs"
	"cryptomirror/internal/session"
	"cryptomirror/internal/ticker"
	"cryptomirror/pkg/binance"

	"go.uber.org/zap"
)

var ErrInvalidSymbol = errors.New("invalid symbol")

// TickerCache is an external mirror of the ticker map that can also warm a
// fresh process.
type TickerCache interface {
	ticker.Sink
	LoadTickers(ctx context.Context, symbols []string) ([]binance.Ticker, error)
}

// Deps are the outside-world collaborators. Cache may be nil.
type Deps struct {
	History session.History
	Dialer  session.Dialer
	Tickers ticker.Fetcher
	Prefs   prefs.Backend
	Cache   TickerCache
	Clock   session.Clock
}

// ChartView is a chart panel's persisted config together with its live state.
type ChartView struct {
	Config   prefs.ChartConfig `json:"config"`
	Snapshot session.Snapshot  `json:"snapshot"`
}

// Dashboard wires the shared market session, the per-chart sessions, the
// ticker poller and the preferences together.
type Dashboard struct {
	logger   *zap.Logger
	prefs    *prefs.Manager
	market   *session.SharedSession
	registry *session.Registry
	poller   *ticker.Poller
	cache    TickerCache

	// serializes chart changes so the registry follows preferences in order
	chartMu sync.Mutex

	closeOnce sync.Once
}

func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Dashboard, error) {
	if deps.History == nil || deps.Dialer == nil || deps.Tickers == nil || deps.Prefs == nil {
		return nil, errors.New("dashboard: missing dependency")
	}

	res, err := binance.ParseResolution(cfg.Session.DefaultResolution)
	if err != nil {
		return nil, fmt.Errorf("default resolution: %w", err)
	}

	opts := session.Options{
		MaxBars:          cfg.Session.MaxBars,
		MaxTrades:        cfg.Session.MaxTrades,
		BootstrapTimeout: cfg.Session.BootstrapTimeout,
		ReconnectInitial: cfg.Session.ReconnectInitial,
		ReconnectMax:     cfg.Session.ReconnectMax,
		Clock:            deps.Clock,
	}

	logger = logger.Named("dashboard")

	factory := func(key session.Key) *session.Session {
		return session.New(key, deps.History, deps.Dialer, opts, logger)
	}

	pollerOpts := []ticker.Option{ticker.WithTimeout(cfg.Binance.REST.Timeout)}
	if deps.Cache != nil {
		pollerOpts = append(pollerOpts, ticker.WithSink(deps.Cache))
	}

	d := &Dashboard{
		logger:   logger,
		prefs:    prefs.NewManager(deps.Prefs, logger),
		market:   session.NewShared(cfg.Session.DefaultSymbol, res, deps.History, deps.Dialer, opts, logger),
		registry: session.NewRegistry(factory, logger),
		poller:   ticker.NewPoller(deps.Tickers, cfg.Ticker.Interval, logger, pollerOpts...),
		cache:    deps.Cache,
	}
	d.poller.SetSymbols(catalog.Pairs())
	return d, nil
}

// Start loads preferences, brings up a session per persisted chart and the
// shared market session, then starts ticker polling.
func (d *Dashboard) Start(ctx context.Context) error {
	st := d.prefs.Load(ctx)

	if err := d.market.Start(); err != nil {
		return fmt.Errorf("start market session: %w", err)
	}

	d.chartMu.Lock()
	err := d.registry.Sync(panels(st.Charts))
	d.chartMu.Unlock()
	if err != nil {
		return fmt.Errorf("start chart sessions: %w", err)
	}

	d.warmTickers(ctx)
	d.poller.Start(ctx)

	d.logger.Info("dashboard started",
		zap.String("symbol", d.market.Symbol()),
		zap.String("layout", string(st.Layout)),
		zap.Int("charts", len(st.Charts)),
	)
	return nil
}

func (d *Dashboard) warmTickers(ctx context.Context) {
	if d.cache == nil {
		return
	}
	cached, err := d.cache.LoadTickers(ctx, d.poller.Symbols())
	if err != nil {
		d.logger.Warn("failed to read cached tickers", common.Code(common.ErrCodeTickerCacheFailed), zap.Error(err))
		return
	}
	d.poller.Seed(cached)
	d.logger.Debug("seeded tickers from cache", zap.Int("count", len(cached)))
}

// Close stops polling and disposes every session. It is idempotent.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() {
		d.poller.Stop()
		d.registry.Close()
		d.market.Close()
		d.prefs.Save(context.Background())
		d.logger.Info("dashboard closed")
	})
}

func panels(charts []prefs.ChartConfig) []session.Panel {
	out := make([]session.Panel, len(charts))
	for i, c := range charts {
		out[i] = session.Panel{ID: c.ID, Key: session.Key{Symbol: c.Symbol, Resolution: c.Resolution}}
	}
	return out
}

// normalizePair accepts "BTC", "btcusdt" or "BTCUSDT".
func normalizePair(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "", ErrInvalidSymbol
	}
	if pair, ok := catalog.ShortToPair(symbol); ok {
		return pair, nil
	}
	return strings.ToLower(symbol), nil
}

func (d *Dashboard) Market() session.Snapshot {
	return d.market.Snapshot()
}

func (d *Dashboard) SubscribeMarket(fn func(session.Snapshot)) (unsubscribe func()) {
	return d.market.Subscribe(fn)
}

// SelectSymbol switches the shared market session. It reports whether the
// symbol changed.
func (d *Dashboard) SelectSymbol(symbol string) (bool, error) {
	pair, err := normalizePair(symbol)
	if err != nil {
		return false, err
	}
	return d.market.SetSymbol(pair)
}

func (d *Dashboard) view(c prefs.ChartConfig, snaps map[string]session.Snapshot) ChartView {
	return ChartView{Config: c, Snapshot: snaps[c.ID]}
}

// Charts lists the current layout's panels in order.
func (d *Dashboard) Charts() []ChartView {
	charts := d.prefs.Charts()
	snaps := d.registry.Snapshots()

	out := make([]ChartView, len(charts))
	for i, c := range charts {
		out[i] = d.view(c, snaps)
	}
	return out
}

func (d *Dashboard) Chart(id string) (ChartView, bool) {
	for _, c := range d.prefs.Charts() {
		if c.ID != id {
			continue
		}
		s, ok := d.registry.Get(id)
		if !ok {
			return ChartView{Config: c}, true
		}
		return ChartView{Config: c, Snapshot: s.Snapshot()}, true
	}
	return ChartView{}, false
}

func (d *Dashboard) Layout() prefs.Layout {
	return d.prefs.Layout()
}

// SetLayout switches the grid and reconciles the chart sessions with it.
func (d *Dashboard) SetLayout(ctx context.Context, l prefs.Layout) ([]ChartView, error) {
	d.chartMu.Lock()
	defer d.chartMu.Unlock()

	st, err := d.prefs.SetLayout(ctx, l)
	if err != nil {
		return nil, err
	}
	if err := d.registry.Sync(panels(st.Charts)); err != nil {
		return nil, err
	}
	return d.Charts(), nil
}

// UpdateChart changes a panel's symbol and/or resolution. Empty values keep
// the current setting. The panel gets a fresh session only when its key changed.
func (d *Dashboard) UpdateChart(ctx context.Context, id, symbol string, res binance.Resolution) (ChartView, error) {
	d.chartMu.Lock()
	defer d.chartMu.Unlock()

	var (
		st  prefs.State
		err error
	)
	if symbol != "" {
		pair, perr := normalizePair(symbol)
		if perr != nil {
			return ChartView{}, perr
		}
		if st, err = d.prefs.UpdateChartSymbol(ctx, id, pair); err != nil {
			return ChartView{}, err
		}
	}
	if res != "" {
		if st, err = d.prefs.UpdateChartResolution(ctx, id, res); err != nil {
			return ChartView{}, err
		}
	}
	if symbol == "" && res == "" {
		st = d.prefs.State()
	}

	for _, c := range st.Charts {
		if c.ID != id {
			continue
		}
		s, _, err := d.registry.Ensure(id, session.Key{Symbol: c.Symbol, Resolution: c.Resolution})
		if err != nil {
			return ChartView{}, err
		}
		return ChartView{Config: c, Snapshot: s.Snapshot()}, nil
	}
	return ChartView{}, fmt.Errorf("chart %q: %w", id, prefs.ErrNotFound)
}

func (d *Dashboard) Tickers() ticker.Snapshot {
	return d.poller.Snapshot()
}

// Preferences exposes watchlist management.
func (d *Dashboard) Preferences() *prefs.Manager {
	return d.prefs
}
