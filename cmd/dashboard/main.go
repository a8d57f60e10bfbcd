package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cryptomirror/config"
	"cryptomirror/internal/api"
	"cryptomirror/internal/common"
	"cryptomirror/internal/dashboard"
	"cryptomirror/internal/session"
	"cryptomirror/logger"
	"cryptomirror/pkg/binance"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg, err := config.Load()
	if err != nil {
		panic(common.ErrMsgConfigLoadFailed.String() + ": " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	store, err := openStorage(cfg, log)
	if err != nil {
		log.Fatal("failed to open preferences backend", common.Code(common.ErrCodePersistenceFailed), zap.Error(err))
	}
	defer store.Close()

	rest := binance.NewRESTClient(cfg.Binance.REST.BaseURL, cfg.Binance.REST.Timeout, log)
	ws := binance.NewWSDialer(cfg.Binance.WS.URL, cfg.Binance.WS.HandshakeTimeout, cfg.Binance.WS.PingInterval, log)

	deps := dashboard.Deps{
		History: rest,
		Dialer:  session.WSDialer{WSDialer: ws},
		Tickers: rest,
		Prefs:   store.prefs,
	}
	if store.tickers != nil {
		deps.Cache = store.tickers
	}

	dash, err := dashboard.New(cfg, deps, log)
	if err != nil {
		log.Fatal("failed to build dashboard", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dash.Start(ctx); err != nil {
		log.Fatal("dashboard failed to start", zap.Error(err))
	}

	srv := api.NewServer(cfg.HTTP.Addr, dash, log)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("http server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	dash.Close()
}
