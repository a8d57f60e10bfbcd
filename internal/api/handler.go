package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"cryptomirror/internal/catalog"
	"cryptomirror/internal/dashboard"
	"cryptomirror/internal/prefs"
	"cryptomirror/internal/session"
	"cryptomirror/pkg/binance"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type symbolRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

type chartRequest struct {
	Symbol     string             `json:"symbol"`
	Resolution binance.Resolution `json:"timeframe"`
}

type layoutRequest struct {
	Layout prefs.Layout `json:"layout" binding:"required"`
}

type watchlistRequest struct {
	Title string `json:"title" binding:"required"`
	Icon  string `json:"icon"`
}

// Health handles GET /health
func (s *Server) Health(c *gin.Context) {
	m := s.dash.Market()
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"market": gin.H{
			"symbol": m.Symbol,
			"status": m.Status,
			"phase":  m.Phase,
		},
	})
}

func (s *Server) GetTokens(c *gin.Context) {
	c.JSON(http.StatusOK, catalog.Tokens())
}

func (s *Server) GetMarket(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.Market())
}

// StreamMarket handles GET /market/stream as server-sent events. Only the
// newest pending snapshot is kept for a slow client. The stream ends when the
// market session is disposed or the server shuts down.
func (s *Server) StreamMarket(c *gin.Context) {
	updates := make(chan session.Snapshot, 1)
	unsubscribe := s.dash.SubscribeMarket(func(snap session.Snapshot) {
		for {
			select {
			case updates <- snap:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	ctx := c.Request.Context()
	c.SSEvent("snapshot", s.dash.Market())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-s.done:
			return false
		case snap := <-updates:
			c.SSEvent("snapshot", snap)
			return snap.Phase != session.PhaseDisposed
		}
	})
}

// PutMarketSymbol handles PUT /market/symbol
func (s *Server) PutMarketSymbol(c *gin.Context) {
	var req symbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleValidationError(c, err)
		return
	}

	changed, err := s.dash.SelectSymbol(req.Symbol)
	if err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed, "market": s.dash.Market()})
}

func (s *Server) GetCharts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"layout": s.dash.Layout(), "charts": s.dash.Charts()})
}

func (s *Server) GetChart(c *gin.Context) {
	view, ok := s.dash.Chart(c.Param("id"))
	if !ok {
		s.handleError(c, prefs.ErrNotFound, http.StatusNotFound, "chart not found")
		return
	}
	c.JSON(http.StatusOK, view)
}

// PutChart handles PUT /charts/:id; omitted fields keep their value.
func (s *Server) PutChart(c *gin.Context) {
	var req chartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	view, err := s.dash.UpdateChart(ctx, c.Param("id"), req.Symbol, req.Resolution)
	if err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) PutLayout(c *gin.Context) {
	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleValidationError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	charts, err := s.dash.SetLayout(ctx, req.Layout)
	if err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layout": req.Layout, "charts": charts})
}

func (s *Server) GetTickers(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.Tickers())
}

func (s *Server) GetWatchlists(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.Preferences().Watchlists())
}

func (s *Server) PostWatchlist(c *gin.Context) {
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleValidationError(c, err)
		return
	}

	w, err := s.dash.Preferences().AddWatchlist(c.Request.Context(), req.Title, req.Icon)
	if err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (s *Server) PutWatchlist(c *gin.Context) {
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleValidationError(c, err)
		return
	}

	p := s.dash.Preferences()
	if err := p.RenameWatchlist(c.Request.Context(), c.Param("id"), req.Title, req.Icon); err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, p.Watchlists())
}

func (s *Server) DeleteWatchlist(c *gin.Context) {
	if err := s.dash.Preferences().RemoveWatchlist(c.Request.Context(), c.Param("id")); err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) PostWatchlistToken(c *gin.Context) {
	var req symbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleValidationError(c, err)
		return
	}

	p := s.dash.Preferences()
	if err := p.AddToken(c.Request.Context(), c.Param("id"), req.Symbol); err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, p.Watchlists())
}

func (s *Server) DeleteWatchlistToken(c *gin.Context) {
	p := s.dash.Preferences()
	if err := p.RemoveToken(c.Request.Context(), c.Param("id"), c.Param("symbol")); err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, p.Watchlists())
}

// PostFavorite handles POST /favorites/:symbol by toggling membership.
func (s *Server) PostFavorite(c *gin.Context) {
	symbol := c.Param("symbol")
	fav, err := s.dash.Preferences().ToggleFavorite(c.Request.Context(), symbol)
	if err != nil {
		s.handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "favorite": fav})
}

// handleDomainError maps dashboard and preference errors onto status codes.
func (s *Server) handleDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, prefs.ErrNotFound):
		s.handleError(c, err, http.StatusNotFound, err.Error())
	case errors.Is(err, prefs.ErrDefaultWatchlist):
		s.handleError(c, err, http.StatusConflict, err.Error())
	case errors.Is(err, prefs.ErrInvalidLayout),
		errors.Is(err, prefs.ErrInvalidInput),
		errors.Is(err, prefs.ErrUnknownToken),
		errors.Is(err, dashboard.ErrInvalidSymbol):
		s.handleValidationError(c, err)
	case errors.Is(err, session.ErrDisposed):
		s.handleError(c, err, http.StatusServiceUnavailable, "shutting down")
	default:
		s.handleError(c, err, http.StatusInternalServerError, "Internal server error")
	}
}

// handleError logs the error and sends the response
func (s *Server) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID := c.GetString(RequestIDContextKey)

	log := s.logger.Warn
	if statusCode >= http.StatusInternalServerError {
		log = s.logger.Error
	}
	log("API error",
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status_code", statusCode),
		zap.Error(err),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestID,
	})
}

func (s *Server) handleValidationError(c *gin.Context, err error) {
	s.handleError(c, err, http.StatusBadRequest, err.Error())
}
