package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"cryptomirror/config"
	"cryptomirror/internal/prefs"
	"cryptomirror/internal/session"
	"cryptomirror/internal/timeseries"
	"cryptomirror/pkg/binance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubHistory struct{}

func (stubHistory) Klines(ctx context.Context, symbol string, res binance.Resolution, limit int) ([]timeseries.Bar, error) {
	return []timeseries.Bar{
		{Time: 1000, Open: 1, High: 2, Low: 1, Close: 2, Volume: 1},
		{Time: 1060, Open: 2, High: 3, Low: 2, Close: 3, Volume: 1},
	}, nil
}

type stubTransport struct {
	streams []string

	mu     sync.Mutex
	closed bool
}

func (t *stubTransport) Start(h binance.Handlers) {}
func (t *stubTransport) Detach()                  {}

func (t *stubTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *stubTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type stubDialer struct {
	mu         sync.Mutex
	transports []*stubTransport
}

func (d *stubDialer) Dial(streams ...string) (session.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &stubTransport{streams: streams}
	d.transports = append(d.transports, t)
	return t, nil
}

// open returns transports not yet closed that carry stream.
func (d *stubDialer) open(stream string) []*stubTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*stubTransport
	for _, t := range d.transports {
		if t.isClosed() {
			continue
		}
		for _, s := range t.streams {
			if s == stream {
				out = append(out, t)
			}
		}
	}
	return out
}

func (d *stubDialer) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.transports {
		if !t.isClosed() {
			n++
		}
	}
	return n
}

type stubFetcher struct{}

func (stubFetcher) Tickers24h(ctx context.Context, symbols []string) ([]binance.Ticker, error) {
	out := make([]binance.Ticker, len(symbols))
	for i, s := range symbols {
		out[i] = binance.Ticker{Symbol: s, Price: 100, LastUpdated: 1}
	}
	return out, nil
}

type stubCache struct {
	mu     sync.Mutex
	seed   []binance.Ticker
	stored int
}

func (c *stubCache) StoreTickers(ctx context.Context, t []binance.Ticker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored += len(t)
	return nil
}

func (c *stubCache) LoadTickers(ctx context.Context, symbols []string) ([]binance.Ticker, error) {
	return c.seed, nil
}

func (c *stubCache) storedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored
}

func newTestDashboard(t *testing.T, backend prefs.Backend, cache TickerCache) (*Dashboard, *stubDialer) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	dialer := &stubDialer{}
	deps := Deps{
		History: stubHistory{},
		Dialer:  dialer,
		Tickers: stubFetcher{},
		Prefs:   backend,
	}
	if cache != nil {
		deps.Cache = cache
	}

	d, err := New(cfg, deps, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, dialer
}

// go test -v --run TestNewRequiresDeps
func TestNewRequiresDeps(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	_, err = New(cfg, Deps{History: stubHistory{}}, zap.NewNop())
	assert.Error(t, err)

	cfg.Session.DefaultResolution = "7m"
	_, err = New(cfg, Deps{History: stubHistory{}, Dialer: &stubDialer{}, Tickers: stubFetcher{}, Prefs: prefs.NewMemoryBackend()}, zap.NewNop())
	assert.Error(t, err)
}

// go test -v --run TestStartBringsUpSessions
func TestStartBringsUpSessions(t *testing.T) {
	cache := &stubCache{seed: []binance.Ticker{{Symbol: "btcusdt", Price: 1}}}
	d, dialer := newTestDashboard(t, prefs.NewMemoryBackend(), cache)

	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		m := d.Market()
		return m.Phase == session.PhaseLive && len(m.Bars) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "btcusdt", d.Market().Symbol)
	assert.Len(t, dialer.open(binance.TradeStream("btcusdt")), 1)

	charts := d.Charts()
	require.Len(t, charts, 1)
	assert.Equal(t, "chart-1", charts[0].Config.ID)

	require.Eventually(t, func() bool {
		return d.Tickers().UpdatedAt != 0 && cache.storedCount() == 15
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, d.Tickers().Tickers, 15)
}

// go test -v --run TestSetLayoutReconcilesSessions
func TestSetLayoutReconcilesSessions(t *testing.T) {
	d, dialer := newTestDashboard(t, prefs.NewMemoryBackend(), nil)
	require.NoError(t, d.Start(context.Background()))

	views, err := d.SetLayout(context.Background(), prefs.LayoutGrid4)
	require.NoError(t, err)
	require.Len(t, views, 4)
	assert.Equal(t, prefs.LayoutGrid4, d.Layout())

	require.Eventually(t, func() bool {
		return len(dialer.open(binance.KlineStream("solusdt", binance.Resolution1Min))) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = d.SetLayout(context.Background(), prefs.LayoutSingle)
	require.NoError(t, err)
	assert.Empty(t, dialer.open(binance.KlineStream("solusdt", binance.Resolution1Min)))

	_, err = d.SetLayout(context.Background(), prefs.Layout("bogus"))
	assert.ErrorIs(t, err, prefs.ErrInvalidLayout)
}

// go test -v --run TestUpdateChart
func TestUpdateChart(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	d, dialer := newTestDashboard(t, backend, nil)
	require.NoError(t, d.Start(context.Background()))

	view, err := d.UpdateChart(context.Background(), "chart-1", "ETH", binance.Resolution1Hour)
	require.NoError(t, err)
	assert.Equal(t, "ethusdt", view.Config.Symbol)
	assert.Equal(t, binance.Resolution1Hour, view.Config.Resolution)
	assert.Equal(t, "ethusdt", view.Snapshot.Symbol)

	require.Eventually(t, func() bool {
		return len(dialer.open(binance.KlineStream("ethusdt", binance.Resolution1Hour))) == 1
	}, time.Second, 5*time.Millisecond)
	// only the market session still streams btcusdt 1m
	require.Eventually(t, func() bool {
		return len(dialer.open(binance.KlineStream("btcusdt", binance.Resolution1Min))) == 1
	}, time.Second, 5*time.Millisecond)

	// same key keeps the session
	before := dialer.openCount()
	_, err = d.UpdateChart(context.Background(), "chart-1", "ethusdt", "")
	require.NoError(t, err)
	assert.Equal(t, before, dialer.openCount())

	_, err = d.UpdateChart(context.Background(), "chart-7", "BTC", "")
	assert.ErrorIs(t, err, prefs.ErrNotFound)

	got, ok := d.Chart("chart-1")
	require.True(t, ok)
	assert.Equal(t, "ethusdt", got.Config.Symbol)
	_, ok = d.Chart("chart-7")
	assert.False(t, ok)

	// persisted for the next run
	data, ok, err := backend.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(data), `"ethusdt"`)
}

// go test -v --run TestSelectSymbol
func TestSelectSymbol(t *testing.T) {
	d, dialer := newTestDashboard(t, prefs.NewMemoryBackend(), nil)
	require.NoError(t, d.Start(context.Background()))

	changed, err := d.SelectSymbol("SOL")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "solusdt", d.Market().Symbol)

	changed, err = d.SelectSymbol("solusdt")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = d.SelectSymbol("  ")
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	require.Eventually(t, func() bool {
		return len(dialer.open(binance.TradeStream("solusdt"))) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, dialer.open(binance.TradeStream("btcusdt")))
}

// go test -v --run TestCloseDisposesEverything
func TestCloseDisposesEverything(t *testing.T) {
	d, dialer := newTestDashboard(t, prefs.NewMemoryBackend(), nil)
	require.NoError(t, d.Start(context.Background()))
	require.Eventually(t, func() bool { return dialer.openCount() == 2 }, time.Second, 5*time.Millisecond)

	d.Close()
	d.Close()

	assert.Equal(t, 0, dialer.openCount())
	assert.Equal(t, session.PhaseDisposed, d.Market().Phase)
}
