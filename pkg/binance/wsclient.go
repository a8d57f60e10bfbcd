package binance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers receives transport events. Callbacks run on the transport's own
// goroutine, never synchronously from Start, and stop after Detach.
type Handlers struct {
	OnOpen    func()
	OnMessage func(msg []byte)
	OnError   func(err error)
	OnClose   func(err error)
}

// WSDialer builds combined-stream connections against one base URL.
type WSDialer struct {
	baseURL          string
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	logger           *zap.Logger
}

func NewWSDialer(baseURL string, handshakeTimeout, pingInterval time.Duration, logger *zap.Logger) *WSDialer {
	return &WSDialer{
		baseURL:          baseURL,
		handshakeTimeout: handshakeTimeout,
		pingInterval:     pingInterval,
		logger:           logger,
	}
}

// StreamURL joins streams onto the combined endpoint, e.g.
// wss://stream.binance.com:9443/stream?streams=btcusdt@trade/btcusdt@kline_1m.
func StreamURL(baseURL string, streams ...string) (string, error) {
	if len(streams) == 0 {
		return "", errors.New("no streams requested")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported stream url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream url %q has no host", baseURL)
	}
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// Dial validates the target and returns an unopened transport. A non-nil
// error here is permanent for these arguments.
func (d *WSDialer) Dial(streams ...string) (*WSTransport, error) {
	target, err := StreamURL(d.baseURL, streams...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WSTransport{
		url:              target,
		handshakeTimeout: d.handshakeTimeout,
		pingInterval:     d.pingInterval,
		logger:           d.logger.With(zap.String("url", target)),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// WSTransport is one websocket connection attempt. It does not reconnect;
// the owner decides whether to dial again after OnClose.
type WSTransport struct {
	url              string
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	logger           *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handlers Handlers
	conn     *websocket.Conn
	started  bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (t *WSTransport) URL() string {
	return t.url
}

// Start opens the connection in the background and begins delivering events to h.
func (t *WSTransport) Start(h Handlers) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.handlers = h
	t.mu.Unlock()

	go t.run()
}

// Detach drops the handlers; no callback fires after it returns.
func (t *WSTransport) Detach() {
	t.mu.Lock()
	t.handlers = Handlers{}
	t.mu.Unlock()
}

// Close aborts a pending handshake or closes the open connection. It is idempotent.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()

		conn := t.release()
		if conn != nil {
			t.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			t.writeMu.Unlock()
			t.closeErr = conn.Close()
		}
	})
	return t.closeErr
}

// release hands the open connection to exactly one closer, either Close or
// the read loop after a remote close. It returns nil for the loser.
func (t *WSTransport) release() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn := t.conn
	t.conn = nil
	return conn
}

func (t *WSTransport) current() Handlers {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers
}

func (t *WSTransport) run() {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: t.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(t.ctx, t.url, nil)
	if err != nil {
		h := t.current()
		if h.OnError != nil {
			h.OnError(err)
		}
		if h.OnClose != nil {
			h.OnClose(err)
		}
		return
	}

	t.mu.Lock()
	if t.ctx.Err() != nil {
		// closed while the handshake was in flight
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.logger.Debug("stream connected")

	if h := t.current(); h.OnOpen != nil {
		h.OnOpen()
	}

	if t.pingInterval > 0 {
		go t.pingLoop(conn)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// remote close: drop our reference before reporting it
			if c := t.release(); c != nil {
				_ = c.Close()
			}

			h := t.current()
			if t.ctx.Err() == nil && h.OnError != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				h.OnError(err)
			}
			if h.OnClose != nil {
				h.OnClose(err)
			}
			return
		}

		if h := t.current(); h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}

func (t *WSTransport) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("stream ping failed", zap.Error(err))
				return
			}
		}
	}
}
