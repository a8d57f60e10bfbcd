package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Binance     BinanceConfig     `mapstructure:"binance"`
	Session     SessionConfig     `mapstructure:"session"`
	Ticker      TickerConfig      `mapstructure:"ticker"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
}

// SessionConfig tunes every streaming session, shared or per-chart.
type SessionConfig struct {
	DefaultSymbol     string        `mapstructure:"default_symbol"`
	DefaultResolution string        `mapstructure:"default_resolution"`
	MaxBars           int           `mapstructure:"max_bars"`
	MaxTrades         int           `mapstructure:"max_trades"`
	BootstrapTimeout  time.Duration `mapstructure:"bootstrap_timeout"`
	ReconnectInitial  time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
}

type TickerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type PreferencesConfig struct {
	Backend string `mapstructure:"backend"` // "memory", "redis" or "postgres"
	Key     string `mapstructure:"key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// setDefaults mirrors config.yaml.
func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rest.base_url", "https://api.binance.com")
	v.SetDefault("binance.rest.timeout", 10*time.Second)
	v.SetDefault("binance.ws.url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("binance.ws.handshake_timeout", 10*time.Second)
	v.SetDefault("binance.ws.ping_interval", 30*time.Second)

	v.SetDefault("session.default_symbol", "btcusdt")
	v.SetDefault("session.default_resolution", "1m")
	v.SetDefault("session.max_bars", 500)
	v.SetDefault("session.max_trades", 50)
	v.SetDefault("session.bootstrap_timeout", 15*time.Second)
	v.SetDefault("session.reconnect_initial", time.Second)
	v.SetDefault("session.reconnect_max", 30*time.Second)

	v.SetDefault("ticker.interval", 10*time.Second)
	v.SetDefault("ticker.cache_ttl", 60*time.Second)

	v.SetDefault("preferences.backend", "memory")
	v.SetDefault("preferences.key", "cryptomirror:preferences")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "cryptomirror")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.output_file", "")
}

// Load loads application configuration using Viper.
// It reads config.yaml when present and overrides with MIRROR_* environment variables.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	if len(paths) == 0 {
		paths = defaultPaths()
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Every key has a default so a missing file still loads
	setDefaults(v)

	// Support environment variables with dot notation (e.g., MIRROR_BINANCE_WS_URL)
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config.yaml; only a missing file is tolerated
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func defaultPaths() []string {
	paths := []string{"./config"}

	ex, err := os.Executable()
	if err != nil {
		return paths
	}
	// go run builds into a temp dir, so resolve from the working directory
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		return append(paths, filepath.Join(pwd, "../../config"))
	}
	return append(paths, filepath.Join(filepath.Dir(ex), "../config"))
}
