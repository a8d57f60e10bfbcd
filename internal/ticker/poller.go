package ticker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptomirror/internal/common"
	"cryptomirror/internal/session"
	"cryptomirror/pkg/binance"

	"go.uber.org/zap"
)

const DefaultInterval = 10 * time.Second

// Fetcher returns 24h summaries for a batch of symbols in one call.
type Fetcher interface {
	Tickers24h(ctx context.Context, symbols []string) ([]binance.Ticker, error)
}

// Sink mirrors successful polls somewhere outside the process.
type Sink interface {
	StoreTickers(ctx context.Context, tickers []binance.Ticker) error
}

type Snapshot struct {
	Seq       uint64                    `json:"seq"`
	Tickers   map[string]binance.Ticker `json:"tickers"`
	UpdatedAt int64                     `json:"updatedAt,omitempty"` // ms of the last successful poll
	LastError string                    `json:"lastError,omitempty"`
}

// Poller refreshes 24h tickers for a symbol set on a fixed interval. A failed
// poll keeps the previous tickers.
type Poller struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	bc       *session.Broadcaster[Snapshot]

	mu        sync.Mutex
	symbols   []string
	tickers   map[string]binance.Ticker
	updatedAt int64
	lastErr   string
	seq       uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Poller)

func WithSink(s Sink) Option {
	return func(p *Poller) { p.sink = s }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Poller) { p.timeout = d }
}

func NewPoller(fetcher Fetcher, interval time.Duration, logger *zap.Logger, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		fetcher:  fetcher,
		interval: interval,
		timeout:  interval,
		logger:   logger.Named("ticker"),
		bc:       session.NewBroadcaster[Snapshot](),
		tickers:  make(map[string]binance.Ticker),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetSymbols replaces the tracked set. It takes effect on the next poll.
func (p *Poller) SetSymbols(symbols []string) {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)

	p.mu.Lock()
	p.symbols = out
	p.mu.Unlock()
}

func (p *Poller) Symbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.symbols...)
}

// Start polls immediately and then every interval until Stop or ctx ends.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.Poll(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Poll(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight poll. It is idempotent.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Poll runs one cycle and reports whether it refreshed the tickers.
func (p *Poller) Poll(ctx context.Context) bool {
	symbols := p.Symbols()
	if len(symbols) == 0 {
		p.logger.Warn("no symbols to track")
		return false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	tickers, err := p.fetcher.Tickers24h(fetchCtx, symbols)
	cancel()

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return false
		}
		p.logger.Error(common.ErrMsgTickerPollFailed.String(), common.Code(common.ErrCodeTickerPollFailed), zap.Error(err))
		p.mu.Lock()
		p.lastErr = err.Error()
		p.seq++
		snap := p.snapshotLocked()
		p.mu.Unlock()
		p.bc.Publish(snap.Seq, snap)
		return false
	}

	next := make(map[string]binance.Ticker, len(tickers))
	for _, t := range tickers {
		next[strings.ToLower(t.Symbol)] = t
	}

	p.mu.Lock()
	p.tickers = next
	p.lastErr = ""
	p.updatedAt = time.Now().UnixMilli()
	p.seq++
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Debug("tickers updated", zap.Int("count", len(next)))
	p.bc.Publish(snap.Seq, snap)

	if p.sink != nil {
		if err := p.sink.StoreTickers(ctx, tickers); err != nil {
			p.logger.Warn(common.ErrMsgTickerCacheFailed.String(), common.Code(common.ErrCodeTickerCacheFailed), zap.Error(err))
		}
	}
	return true
}

// Seed fills the ticker map from a previous run's cache. It does nothing
// once a poll has succeeded.
func (p *Poller) Seed(tickers []binance.Ticker) {
	if len(tickers) == 0 {
		return
	}

	p.mu.Lock()
	if p.updatedAt != 0 {
		p.mu.Unlock()
		return
	}
	for _, t := range tickers {
		p.tickers[strings.ToLower(t.Symbol)] = t
	}
	p.seq++
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.bc.Publish(snap.Seq, snap)
}

func (p *Poller) snapshotLocked() Snapshot {
	cp := make(map[string]binance.Ticker, len(p.tickers))
	for k, v := range p.tickers {
		cp[k] = v
	}
	return Snapshot{Seq: p.seq, Tickers: cp, UpdatedAt: p.updatedAt, LastError: p.lastErr}
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return p.bc.Subscribe(fn)
}
