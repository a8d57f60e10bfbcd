package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"cryptomirror/internal/timeseries"
	"cryptomirror/pkg/binance"
)

// manualClock fires timers only when the test says so.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) Now() time.Time { return time.Unix(1700000000, 0) }

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// pending returns timers that have neither fired nor been stopped.
func (c *manualClock) pending() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (c *manualClock) all() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*manualTimer(nil), c.timers...)
}

// fire runs the callback even if the timer was stopped, to model a timer
// that had already been dispatched when Stop raced it.
func (t *manualTimer) fire() {
	t.clock.mu.Lock()
	t.fired = true
	t.clock.mu.Unlock()
	t.f()
}

type fakeHistory struct {
	// ignoreCancel lets a held fetch complete after its context is cancelled.
	ignoreCancel bool

	mu    sync.Mutex
	bars  map[string][]timeseries.Bar
	errs  map[string]error
	gates map[string]chan struct{}
	calls []historyCall
}

type historyCall struct {
	Symbol     string
	Resolution binance.Resolution
	Limit      int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		bars:  make(map[string][]timeseries.Bar),
		errs:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

// hold makes fetches for symbol block until the returned func is called.
func (h *fakeHistory) hold(symbol string) (release func()) {
	ch := make(chan struct{})
	h.mu.Lock()
	h.gates[symbol] = ch
	h.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (h *fakeHistory) Klines(ctx context.Context, symbol string, res binance.Resolution, limit int) ([]timeseries.Bar, error) {
	h.mu.Lock()
	h.calls = append(h.calls, historyCall{symbol, res, limit})
	gate := h.gates[symbol]
	bars, err := h.bars[symbol], h.errs[symbol]
	h.mu.Unlock()

	if gate != nil {
		if h.ignoreCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return append([]timeseries.Bar(nil), bars...), nil
}

func (h *fakeHistory) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type fakeDialer struct {
	mu         sync.Mutex
	err        error
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(streams ...string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	t := &fakeTransport{streams: streams}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) byStream(stream string) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.transports) - 1; i >= 0; i-- {
		for _, s := range d.transports[i].streams {
			if s == stream {
				return d.transports[i]
			}
		}
	}
	return nil
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// fakeTransport keeps the handlers it was started with so tests can drive
// events, including events arriving after Detach.
type fakeTransport struct {
	streams []string

	mu       sync.Mutex
	started  binance.Handlers
	detached bool
	closed   int
}

func (t *fakeTransport) Start(h binance.Handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = h
}

func (t *fakeTransport) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detached = true
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed > 0
}

func (t *fakeTransport) isDetached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detached
}

// raw returns the handlers given to Start, ignoring Detach, to simulate a
// late event already in flight.
func (t *fakeTransport) raw() binance.Handlers {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *fakeTransport) open() { t.raw().OnOpen() }

func (t *fakeTransport) message(s string) { t.raw().OnMessage([]byte(s)) }

func (t *fakeTransport) fail(err error) {
	h := t.raw()
	h.OnError(err)
	h.OnClose(err)
}

func (t *fakeTransport) drop() { t.raw().OnClose(errors.New("connection reset")) }

func klineMsg(symbol string, res binance.Resolution, openMs int64, o, c string) string {
	return `{"stream":"` + binance.KlineStream(symbol, res) + `","data":{"e":"kline","k":{"t":` +
		itoa(openMs) + `,"o":"` + o + `","c":"` + c + `","h":"` + c + `","l":"` + o + `","v":"1"}}}`
}

func tradeMsg(symbol string, id int64, price string) string {
	return `{"stream":"` + binance.TradeStream(symbol) + `","data":{"e":"trade","t":` + itoa(id) +
		`,"p":"` + price + `","q":"0.5","T":1700000000000,"m":false}}`
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
