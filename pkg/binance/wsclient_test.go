package binance

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStreamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btcusdt@trade/btcusdt@kline_1m", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	}))
}

// go test -v --run TestWSTransportLifecycle
func TestWSTransportLifecycle(t *testing.T) {
	srv := newStreamServer(t, []string{`{"a":1}`, `{"b":2}`})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	d := NewWSDialer(wsURL, time.Second, 0, zap.NewNop())

	tr, err := d.Dial("btcusdt@trade", "btcusdt@kline_1m")
	require.NoError(t, err)

	opened := make(chan struct{}, 1)
	msgs := make(chan string, 4)
	closed := make(chan error, 1)
	tr.Start(Handlers{
		OnOpen:    func() { opened <- struct{}{} },
		OnMessage: func(m []byte) { msgs <- string(m) },
		OnClose:   func(err error) { closed <- err },
	})

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("transport never opened")
	}
	assert.Equal(t, `{"a":1}`, <-msgs)
	assert.Equal(t, `{"b":2}`, <-msgs)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close not reported")
	}

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}

// go test -v --run TestWSTransportCloseAfterRemoteClose
func TestWSTransportCloseAfterRemoteClose(t *testing.T) {
	srv := newStreamServer(t, nil)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	d := NewWSDialer(wsURL, time.Second, 0, zap.NewNop())

	for i := 0; i < 5; i++ {
		tr, err := d.Dial("btcusdt@trade", "btcusdt@kline_1m")
		require.NoError(t, err)

		closed := make(chan struct{})
		tr.Start(Handlers{OnClose: func(error) { close(closed) }})

		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatal("close not reported")
		}

		// the read loop already closed the connection
		require.NoError(t, tr.Close())
		require.NoError(t, tr.Close())
	}
}

// go test -v --run TestWSTransportDetach
func TestWSTransportDetach(t *testing.T) {
	srv := newStreamServer(t, []string{`{"a":1}`})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	tr, err := NewWSDialer(wsURL, time.Second, 0, zap.NewNop()).Dial("btcusdt@trade", "btcusdt@kline_1m")
	require.NoError(t, err)

	called := make(chan struct{}, 8)
	tr.Start(Handlers{
		OnOpen:    func() { called <- struct{}{} },
		OnMessage: func([]byte) { called <- struct{}{} },
		OnClose:   func(error) { called <- struct{}{} },
	})
	tr.Detach()
	_ = tr.Close()

	select {
	case <-called:
		t.Fatal("callback fired after detach")
	case <-time.After(200 * time.Millisecond):
	}
}

// go test -v --run TestDialRejectsBadURL
func TestDialRejectsBadURL(t *testing.T) {
	_, err := NewWSDialer("://nope", time.Second, 0, zap.NewNop()).Dial("btcusdt@trade")
	assert.Error(t, err)
}
