package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"cryptomirror/internal/common"
	"cryptomirror/internal/dashboard"
	"cryptomirror/internal/prefs"
	"cryptomirror/internal/session"
	"cryptomirror/internal/ticker"
	"cryptomirror/pkg/binance"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 10 * time.Second
	ServiceName         = "cryptomirror"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// Dashboard is what the HTTP surface drives.
type Dashboard interface {
	Market() session.Snapshot
	SubscribeMarket(fn func(session.Snapshot)) (unsubscribe func())
	SelectSymbol(symbol string) (bool, error)
	Charts() []dashboard.ChartView
	Chart(id string) (dashboard.ChartView, bool)
	UpdateChart(ctx context.Context, id, symbol string, res binance.Resolution) (dashboard.ChartView, error)
	Layout() prefs.Layout
	SetLayout(ctx context.Context, l prefs.Layout) ([]dashboard.ChartView, error)
	Tickers() ticker.Snapshot
	Preferences() *prefs.Manager
}

type Server struct {
	dash   Dashboard
	logger *zap.Logger
	srv    *http.Server

	// closed on Shutdown so open event streams return
	done     chan struct{}
	doneOnce sync.Once
}

func NewServer(addr string, dash Dashboard, logger *zap.Logger) *Server {
	s := &Server{
		dash:   dash,
		logger: logger.Named("api"),
		done:   make(chan struct{}),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the gin engine with every endpoint registered.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(s.logger))
	router.Use(recoveryMiddleware(s.logger))

	router.GET("/health", s.Health)
	router.GET("/tokens", s.GetTokens)

	router.GET("/market", s.GetMarket)
	router.GET("/market/stream", s.StreamMarket)
	router.PUT("/market/symbol", s.PutMarketSymbol)

	router.GET("/charts", s.GetCharts)
	router.GET("/charts/:id", s.GetChart)
	router.PUT("/charts/:id", s.PutChart)
	router.PUT("/layout", s.PutLayout)

	router.GET("/tickers", s.GetTickers)

	router.GET("/watchlists", s.GetWatchlists)
	router.POST("/watchlists", s.PostWatchlist)
	router.PUT("/watchlists/:id", s.PutWatchlist)
	router.DELETE("/watchlists/:id", s.DeleteWatchlist)
	router.POST("/watchlists/:id/tokens", s.PostWatchlistToken)
	router.DELETE("/watchlists/:id/tokens/:symbol", s.DeleteWatchlistToken)
	router.POST("/favorites/:symbol", s.PostFavorite)

	return router
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error(common.ErrMsgHTTPServeFailed.String(), common.Code(common.ErrCodeHTTPServeFailed), zap.Error(err))
		return err
	}
	return nil
}

// Shutdown ends open event streams, then stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.srv.Shutdown(ctx)
}
