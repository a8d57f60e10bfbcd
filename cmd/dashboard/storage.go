package main

import (
	"fmt"

	"cryptomirror/config"
	"cryptomirror/internal/common"
	"cryptomirror/internal/prefs"
	"cryptomirror/pkg/storage/postgres"
	"cryptomirror/pkg/storage/redis"

	"go.uber.org/zap"
)

// storage holds the preferences backend, the optional ticker cache and
// whatever connections they need closed.
type storage struct {
	prefs   prefs.Backend
	tickers *redis.TickerCache
	closers []func() error
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStorage picks the preferences backend by name. Redis is also used as
// the ticker cache when reachable; without it the dashboard runs uncached.
func openStorage(cfg *config.Config, log *zap.Logger) (*storage, error) {
	s := &storage{}

	var rc *redis.Client
	if cfg.Preferences.Backend == "redis" || cfg.Ticker.CacheTTL > 0 {
		c, err := redis.NewClient(cfg.Redis)
		switch {
		case err == nil:
			rc = c
			s.closers = append(s.closers, c.Close)
		case cfg.Preferences.Backend == "redis":
			return nil, err
		default:
			log.Warn("ticker cache disabled", common.Code(common.ErrCodeTickerCacheFailed), zap.Error(err))
		}
	}
	if rc != nil && cfg.Ticker.CacheTTL > 0 {
		s.tickers = redis.NewTickerCache(rc, cfg.Ticker.CacheTTL)
	}

	switch cfg.Preferences.Backend {
	case "", "memory":
		s.prefs = prefs.NewMemoryBackend()
	case "redis":
		s.prefs = redis.NewPreferenceStore(rc, cfg.Preferences.Key)
	case "postgres":
		pc, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pc.Close)
		s.prefs = postgres.NewPreferenceStore(pc, cfg.Preferences.Key)
	default:
		s.Close()
		return nil, fmt.Errorf("unknown preferences backend %q", cfg.Preferences.Backend)
	}

	log.Info("storage ready",
		zap.String("preferences", cfg.Preferences.Backend),
		zap.Bool("ticker_cache", s.tickers != nil),
	)
	return s, nil
}
