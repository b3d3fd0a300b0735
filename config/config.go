package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/fintrack/store"
)

// EnvPrefix prefixes environment overrides, e.g. FINTRACK_DATABASE_PATH.
const EnvPrefix = "FINTRACK"

// Config is the complete fintrack configuration
type Config struct {
	Owner    string         `json:"owner" yaml:"owner" mapstructure:"owner"`
	Database DatabaseConfig `json:"database" yaml:"database" mapstructure:"database"`
	Engine   EngineConfig   `json:"engine" yaml:"engine" mapstructure:"engine"`
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
}

// DatabaseConfig locates and tunes the SQLite store
type DatabaseConfig struct {
	Path         string `json:"path" yaml:"path" mapstructure:"path"`
	BusyTimeout  string `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"` // e.g. "5s"
	TxLock       string `json:"tx_lock" yaml:"tx_lock" mapstructure:"tx_lock"`                // "immediate" or "deferred"
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
}

// EngineConfig bounds conflict retries and sets account defaults
type EngineConfig struct {
	MaxRetries      int    `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff    string `json:"retry_backoff" yaml:"retry_backoff" mapstructure:"retry_backoff"`
	DefaultCurrency string `json:"default_currency" yaml:"default_currency" mapstructure:"default_currency"`
}

// ServerConfig configures the HTTP adapter
type ServerConfig struct {
	Address string `json:"address" yaml:"address" mapstructure:"address"`
	Mode    string `json:"mode" yaml:"mode" mapstructure:"mode"` // gin mode: debug, release or test
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"` // "text" or "json"
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// Load reads configuration from path (YAML or JSON, by extension) on top of
// Default(), then applies FINTRACK_* environment overrides. An empty path
// uses the defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("owner", d.Owner)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("database.tx_lock", d.Database.TxLock)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("engine.max_retries", d.Engine.MaxRetries)
	v.SetDefault("engine.retry_backoff", d.Engine.RetryBackoff)
	v.SetDefault("engine.default_currency", d.Engine.DefaultCurrency)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if d, err := parseDuration("database.busy_timeout", c.Database.BusyTimeout); err != nil {
		return err
	} else if d < 0 {
		return fmt.Errorf("database.busy_timeout must not be negative")
	}
	if c.Database.TxLock != "immediate" && c.Database.TxLock != "deferred" {
		return fmt.Errorf("database.tx_lock must be 'immediate' or 'deferred'")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("engine.max_retries must be positive")
	}
	if _, err := parseDuration("engine.retry_backoff", c.Engine.RetryBackoff); err != nil {
		return err
	}
	if len(c.Engine.DefaultCurrency) != 3 {
		return fmt.Errorf("engine.default_currency must be a 3 letter code")
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be 'debug', 'release' or 'test'")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// SlogLevel parses Level ("debug", "info", "warn" or "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// StoreOptions translates the database and engine sections.
func (c *Config) StoreOptions(log *slog.Logger) (store.Options, error) {
	busy, err := parseDuration("database.busy_timeout", c.Database.BusyTimeout)
	if err != nil {
		return store.Options{}, err
	}
	backoff, err := parseDuration("engine.retry_backoff", c.Engine.RetryBackoff)
	if err != nil {
		return store.Options{}, err
	}
	return store.Options{
		Path:         c.Database.Path,
		BusyTimeout:  busy,
		TxLock:       c.Database.TxLock,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxRetries:   c.Engine.MaxRetries,
		RetryBackoff: backoff,
		Logger:       log,
	}, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Owner: "default",
		Database: DatabaseConfig{
			Path:         "./fintrack.db",
			BusyTimeout:  store.DefaultBusyTimeout.String(),
			TxLock:       store.DefaultTxLock,
			MaxOpenConns: store.DefaultMaxOpenConns,
		},
		Engine: EngineConfig{
			MaxRetries:      store.DefaultMaxRetries,
			RetryBackoff:    store.DefaultRetryBackoff.String(),
			DefaultCurrency: "USD",
		},
		Server: ServerConfig{
			Address: "127.0.0.1:8080",
			Mode:    "release",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
